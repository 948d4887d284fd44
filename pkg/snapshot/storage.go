package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
)

// ErrNotExist is returned for snapshots that were never stored.
var ErrNotExist = errors.New("snapshot does not exist")

// IsNotExist determines if the snapshot was never stored.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist)
}

// Storage is where snapshots are kept.
type Storage interface {
	open(ctx context.Context, name string) (io.ReadCloser, error)
	create(ctx context.Context, name string) (io.WriteCloser, error)
	modified(ctx context.Context, name string) (time.Time, error)
}

// Bucket keeps snapshots as objects under a prefix of a GCS bucket.
type Bucket struct {
	Handle *storage.BucketHandle
	Prefix string
}

var _ Storage = &Bucket{}

func (b *Bucket) object(name string) *storage.ObjectHandle {
	return b.Handle.Object(path.Join(b.Prefix, name))
}

func (b *Bucket) open(ctx context.Context, name string) (io.ReadCloser, error) {
	reader, err := b.object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrNotExist, err)
	}
	return reader, err
}

// create starts an upload; the object is only replaced once the writer
// is closed without error.
func (b *Bucket) create(ctx context.Context, name string) (io.WriteCloser, error) {
	writer := b.object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	return writer, nil
}

func (b *Bucket) modified(ctx context.Context, name string) (time.Time, error) {
	attrs, err := b.object(name).Attrs(ctx)
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		return time.Time{}, fmt.Errorf("%w: %w", ErrNotExist, err)
	case err != nil:
		return time.Time{}, fmt.Errorf("could not read attributes of %s: %w", name, err)
	}
	return attrs.Updated, nil
}

// Directory keeps snapshots as files in a local directory.
type Directory struct {
	Path string
}

var _ Storage = &Directory{}

func (d *Directory) open(_ context.Context, name string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(d.Path, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %w", ErrNotExist, err)
	}
	return file, err
}

// create writes to a temporary file that replaces the snapshot on Close,
// so an interrupted write leaves the previous snapshot in place.
func (d *Directory) create(_ context.Context, name string) (io.WriteCloser, error) {
	target := filepath.Join(d.Path, name)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}
	file, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return nil, err
	}
	return &replacingFile{File: file, target: target}, nil
}

func (d *Directory) modified(_ context.Context, name string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(d.Path, name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return time.Time{}, fmt.Errorf("%w: %w", ErrNotExist, err)
	case err != nil:
		return time.Time{}, fmt.Errorf("could not stat %s: %w", name, err)
	}
	return info.ModTime(), nil
}

type replacingFile struct {
	*os.File
	target string
}

func (f *replacingFile) Close() error {
	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.File.Name())
		return err
	}
	return os.Rename(f.File.Name(), f.target)
}
