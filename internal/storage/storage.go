package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when an asset reference does not resolve.
var ErrNotFound = errors.New("asset not found")

const maxExtensionLength = 16

// ObjectStorage defines common object operations across remote backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Placer moves uploads into the uploads area and hands out references
// relative to the asset root, e.g. "uploads/3f9c2d...e1.png".
//
// Uploads are always staged on the local filesystem first. With a remote
// backend the placed file is then copied to the bucket under the same key
// and the local copy removed.
type Placer struct {
	root    string
	uploads string
	remote  ObjectStorage
}

// NewLocalPlacer keeps assets under root/uploads.
func NewLocalPlacer(root, uploads string) (*Placer, error) {
	return newPlacer(root, uploads, nil)
}

// NewRemotePlacer stages under root/uploads and stores assets in backend.
func NewRemotePlacer(root, uploads string, backend ObjectStorage) (*Placer, error) {
	if backend == nil {
		return nil, errors.New("remote placer requires a backend")
	}
	return newPlacer(root, uploads, backend)
}

func newPlacer(root, uploads string, backend ObjectStorage) (*Placer, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		root = "."
	}
	uploads = strings.Trim(filepath.ToSlash(strings.TrimSpace(uploads)), "/")
	if uploads == "" || strings.Contains(uploads, "..") {
		return nil, fmt.Errorf("invalid uploads directory %q", uploads)
	}
	if err := os.MkdirAll(filepath.Join(root, filepath.FromSlash(uploads)), 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &Placer{root: root, uploads: uploads, remote: backend}, nil
}

// UploadsPrefix is the first path segment of every reference.
func (p *Placer) UploadsPrefix() string {
	return p.uploads
}

// Place writes src under a fresh identifier, renames it to carry the
// extension of originalFilename and returns its reference.
func (p *Placer) Place(ctx context.Context, src io.Reader, originalFilename string) (string, error) {
	dir := filepath.Join(p.root, filepath.FromSlash(p.uploads))
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	tempPath := filepath.Join(dir, id)

	if err := writeStaged(ctx, tempPath, src); err != nil {
		return "", err
	}

	finalPath := tempPath
	if ext := Extension(originalFilename); ext != "" {
		finalPath = tempPath + "." + ext
		if err := os.Rename(tempPath, finalPath); err != nil {
			_ = os.Remove(tempPath)
			return "", fmt.Errorf("relocate upload: %w", err)
		}
	}

	rel, err := filepath.Rel(p.root, finalPath)
	if err != nil {
		_ = os.Remove(finalPath)
		return "", fmt.Errorf("relative asset path: %w", err)
	}
	ref := filepath.ToSlash(rel)

	if p.remote != nil {
		if err := p.upload(ctx, ref, finalPath); err != nil {
			_ = os.Remove(finalPath)
			return "", err
		}
		_ = os.Remove(finalPath)
	}

	return ref, nil
}

// Open returns the content of a placed asset.
func (p *Placer) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	key, err := p.key(ref)
	if err != nil {
		return nil, err
	}
	if p.remote != nil {
		return p.remote.Get(ctx, key)
	}
	f, err := os.Open(filepath.Join(p.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, ErrNotFound
	}
	return f, nil
}

// Remove deletes a placed asset.
func (p *Placer) Remove(ctx context.Context, ref string) error {
	key, err := p.key(ref)
	if err != nil {
		return err
	}
	if p.remote != nil {
		return p.remote.Delete(ctx, key)
	}
	if err := os.Remove(filepath.Join(p.root, filepath.FromSlash(key))); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (p *Placer) upload(ctx context.Context, key, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open staged upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat staged upload: %w", err)
	}
	if err := p.remote.Put(ctx, key, f, info.Size(), ContentType(key)); err != nil {
		return fmt.Errorf("store upload in %s: %w", p.remote.Bucket(), err)
	}
	return nil
}

// key validates that ref names a file directly inside the uploads area.
func (p *Placer) key(ref string) (string, error) {
	clean := path.Clean("/" + strings.TrimSpace(ref))[1:]
	if path.Dir(clean) != p.uploads || path.Base(clean) == "" || strings.HasPrefix(path.Base(clean), ".") {
		return "", ErrNotFound
	}
	return clean, nil
}

// Extension returns the last dot-delimited segment of the base of filename.
// Names without a dot, with a trailing dot, or whose extension is not a
// short alphanumeric token have no extension.
func Extension(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return ""
	}
	ext := base[idx+1:]
	if len(ext) > maxExtensionLength {
		return ""
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return ext
}

// ContentType guesses a MIME type from the reference's extension.
func ContentType(ref string) string {
	if ct := mime.TypeByExtension(path.Ext(ref)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func writeStaged(ctx context.Context, dst string, src io.Reader) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("stage upload: %w", err)
	}
	if _, err := io.Copy(out, contextReader{ctx: ctx, r: src}); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("stage upload: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("stage upload: %w", err)
	}
	return nil
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
