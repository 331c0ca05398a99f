package storefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/goliatone/go-gridexport/export"
)

// Store keeps workbook artifacts under Root, each with a JSON metadata
// sidecar next to it.
type Store struct {
	Root string
	Now  func() time.Time
}

// NewStore creates a filesystem-backed artifact store.
func NewStore(root string) *Store {
	return &Store{Root: root, Now: time.Now}
}

// Put writes the artifact to a temp file and renames it into place.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, meta export.ArtifactMeta) (export.ArtifactRef, error) {
	pathOnDisk, err := s.prepare(ctx, key)
	if err != nil {
		return export.ArtifactRef{}, err
	}
	if r == nil {
		return export.ArtifactRef{}, export.NewError(export.KindValidation, "artifact reader is required", nil)
	}

	dir := filepath.Dir(pathOnDisk)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return export.ArtifactRef{}, err
	}

	size, err := writeAtomic(dir, ".artifact-*", pathOnDisk, func(w io.Writer) (int64, error) {
		return io.Copy(w, contextReader{ctx: ctx, r: r})
	})
	if err != nil {
		return export.ArtifactRef{}, err
	}

	meta.Size = size
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = s.now()
	}
	if meta.ContentType == "" {
		meta.ContentType = contentTypeFor(pathOnDisk)
	}

	payload, err := json.Marshal(meta)
	if err != nil {
		return export.ArtifactRef{}, err
	}
	if _, err := writeAtomic(dir, ".meta-*", metaPath(pathOnDisk), func(w io.Writer) (int64, error) {
		n, err := w.Write(payload)
		return int64(n), err
	}); err != nil {
		return export.ArtifactRef{}, err
	}

	return export.ArtifactRef{Key: key, Meta: meta}, nil
}

// Open reads an artifact from disk.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, export.ArtifactMeta, error) {
	pathOnDisk, err := s.prepare(ctx, key)
	if err != nil {
		return nil, export.ArtifactMeta{}, err
	}

	file, err := os.Open(pathOnDisk)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, export.ArtifactMeta{}, export.NewError(export.KindNotFound, fmt.Sprintf("artifact %q not found", key), err)
		}
		return nil, export.ArtifactMeta{}, err
	}

	meta := readMeta(pathOnDisk)
	if meta.ContentType == "" {
		meta.ContentType = contentTypeFor(pathOnDisk)
	}
	if meta.Size == 0 {
		if info, err := file.Stat(); err == nil {
			meta.Size = info.Size()
			if meta.CreatedAt.IsZero() {
				meta.CreatedAt = info.ModTime()
			}
		}
	}
	return file, meta, nil
}

// Delete removes an artifact and its sidecar. Missing artifacts are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	pathOnDisk, err := s.prepare(ctx, key)
	if err != nil {
		return err
	}
	for _, target := range []string{pathOnDisk, metaPath(pathOnDisk)} {
		if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

func (s *Store) prepare(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", export.NewError(export.KindInternal, "store is nil", nil)
	}
	if err := ctx.Err(); err != nil {
		return "", export.NewError(export.KindFromError(err), "artifact store", err)
	}
	if s.Root == "" {
		return "", export.NewError(export.KindValidation, "store root is required", nil)
	}
	if key == "" {
		return "", export.NewError(export.KindValidation, "artifact key is required", nil)
	}
	return s.resolvePath(key)
}

func (s *Store) resolvePath(key string) (string, error) {
	if strings.Contains(key, "..") {
		return "", export.NewError(export.KindValidation, "artifact key escapes root", nil)
	}
	rel := strings.TrimPrefix(path.Clean("/"+key), "/")
	if rel == "" || rel == "." {
		return "", export.NewError(export.KindValidation, "invalid artifact key", nil)
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", export.NewError(export.KindValidation, "artifact key escapes root", nil)
	}
	if strings.HasSuffix(target, metaSuffix) {
		return "", export.NewError(export.KindValidation, "artifact key uses a reserved suffix", nil)
	}
	return target, nil
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// writeAtomic fills a temp file in dir through write, syncs it and renames
// it to target. The temp file is removed on any failure.
func writeAtomic(dir, pattern, target string, write func(io.Writer) (int64, error)) (int64, error) {
	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := write(tmp)
	if err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return 0, err
	}
	return n, nil
}

func readMeta(pathOnDisk string) export.ArtifactMeta {
	data, err := os.ReadFile(metaPath(pathOnDisk))
	if err != nil {
		return export.ArtifactMeta{}
	}
	var meta export.ArtifactMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return export.ArtifactMeta{}
	}
	return meta
}

func contentTypeFor(pathOnDisk string) string {
	ext := strings.ToLower(filepath.Ext(pathOnDisk))
	if ext == ".xlsx" {
		return export.ContentTypeXLSX
	}
	return mime.TypeByExtension(ext)
}

const metaSuffix = ".meta.json"

func metaPath(pathOnDisk string) string {
	return pathOnDisk + metaSuffix
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, export.NewError(export.KindFromError(err), "artifact write interrupted", err)
	}
	return c.r.Read(p)
}
