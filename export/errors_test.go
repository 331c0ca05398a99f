package export

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	errorslib "github.com/goliatone/go-errors"
)

func TestAsGoErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		category errorslib.Category
		code     string
	}{
		{NewError(KindValidation, "bad input", nil), errorslib.CategoryValidation, "validation"},
		{NewError(KindAuthz, "nope", nil), errorslib.CategoryAuthz, "authz"},
		{NewError(KindNotFound, "missing", nil), errorslib.CategoryNotFound, "not_found"},
		{context.DeadlineExceeded, errorslib.CategoryOperation, "timeout"},
		{context.Canceled, errorslib.CategoryOperation, "canceled"},
		{NewError(KindInternal, "boom", nil), errorslib.CategoryInternal, "internal"},
	}

	for _, tc := range cases {
		mapped := AsGoError(tc.err)
		if mapped == nil {
			t.Fatalf("expected mapping for %v", tc.err)
		}
		if mapped.Category != tc.category {
			t.Fatalf("expected category %s, got %s", tc.category, mapped.Category)
		}
		if mapped.TextCode != tc.code {
			t.Fatalf("expected text code %s, got %s", tc.code, mapped.TextCode)
		}
	}
}

func TestKindFromError(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{nil, ""},
		{fmt.Errorf("wrapped: %w", NewError(KindNotFound, "missing", nil)), KindNotFound},
		{fmt.Errorf("wrapped: %w", context.DeadlineExceeded), KindTimeout},
		{NewError(KindValidation, "bad", context.Canceled), KindCanceled},
		{errorslib.New("denied", errorslib.CategoryAuthz), KindAuthz},
		{errorslib.New("bad", errorslib.CategoryValidation), KindValidation},
		{errors.New("boom"), KindInternal},
	}
	for _, tc := range cases {
		if got := KindFromError(tc.err); got != tc.kind {
			t.Fatalf("expected %q for %v, got %q", tc.kind, tc.err, got)
		}
	}
}

func TestAsGoErrorKeepsExportMessage(t *testing.T) {
	mapped := AsGoError(NewError(KindValidation, "max rows exceeded", errors.New("detail")))
	if !strings.Contains(mapped.Error(), "max rows exceeded") || strings.Contains(mapped.Error(), "detail") {
		t.Fatalf("expected export message, got %q", mapped.Error())
	}

	original := errorslib.New("already mapped", errorslib.CategoryNotFound)
	if AsGoError(original) != original {
		t.Fatalf("expected go-errors error to pass through")
	}
}
