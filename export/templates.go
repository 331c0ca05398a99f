package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
)

// FSTemplates resolves templates from a file system such as an embed.FS
// or os.DirFS. Names without an extension get ".xlsx" appended.
type FSTemplates struct {
	FS fs.FS
}

// Open reads the named template from the file system.
func (t FSTemplates) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	_ = ctx
	if t.FS == nil {
		return nil, NewError(KindInternal, "template file system is nil", nil)
	}
	clean, err := templatePath(name)
	if err != nil {
		return nil, err
	}

	file, err := t.FS.Open(clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewError(KindNotFound, fmt.Sprintf("template %q not found", name), err)
		}
		return nil, err
	}
	return file, nil
}

func templatePath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewError(KindValidation, "template name is required", nil)
	}
	clean := path.Clean(strings.TrimPrefix(name, "/"))
	if !fs.ValidPath(clean) {
		return "", NewError(KindValidation, fmt.Sprintf("invalid template name %q", name), nil)
	}
	if path.Ext(clean) == "" {
		clean += ".xlsx"
	}
	return clean, nil
}
