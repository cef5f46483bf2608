// Package storage keeps uploaded and generated files and hands out their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/pricebook/pricebook/internal/shared"
)

// Local stores files below a directory served at a public URL prefix.
type Local struct {
	dir       string
	publicURL string
}

// NewLocal creates the root directory when missing.
func NewLocal(dir, publicURL string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage: directory required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	if publicURL == "" {
		publicURL = "/media"
	}
	return &Local{dir: dir, publicURL: strings.TrimRight(publicURL, "/")}, nil
}

// Upload writes r under name and returns its public URL. The file is written to
// a temporary name first so readers never observe a partial upload.
func (l *Local) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	target := filepath.Join(l.dir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", shared.Wrap(shared.ErrTransport, err)
	}
	tmp := target + ".tmp-" + uuid.NewString()
	f, err := os.Create(tmp)
	if err != nil {
		return "", shared.Wrap(shared.ErrTransport, err)
	}
	_, err = io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", shared.Wrap(shared.ErrTransport, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", shared.Wrap(shared.ErrTransport, err)
	}
	return l.publicURL + "/" + clean, nil
}

// Handler serves stored files. Mount it under the public URL prefix.
func (l *Local) Handler() http.Handler {
	return http.StripPrefix(l.publicURL, http.FileServer(noListing{http.Dir(l.dir)}))
}

func cleanName(name string) (string, error) {
	clean := path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", shared.FieldError("name", "file name required")
	}
	return clean, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// noListing hides directory indexes.
type noListing struct {
	fs http.FileSystem
}

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
