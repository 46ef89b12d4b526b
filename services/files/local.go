package filesvc

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/piyuguide/core"
	"github.com/trezcool/piyuguide/core/counseling"
)

// LocalStore writes uploads below a root directory. Names are prefixed with a UUID,
// so files are never overwritten.
type LocalStore struct {
	root string
}

var _ counseling.FileStore = (*LocalStore)(nil) // interface compliance check

func NewLocalStore(conf *core.Config) *LocalStore {
	return &LocalStore{root: conf.Uploads.Root}
}

// Save returns the path of the stored file, relative to the root.
func (s *LocalStore) Save(ctx context.Context, dir, filename string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	name := filepath.Base(filepath.Clean("/" + filename))
	if name == "/" || name == "." {
		name = "upload"
	}
	rel := filepath.Join(filepath.Base(filepath.Clean("/"+dir)), uuid.New().String()+"_"+name)
	full := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", errors.Wrap(err, "creating upload dir")
	}
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	if _, err = io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return "", errors.Wrap(err, "writing file")
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(full)
		return "", errors.Wrap(err, "closing file")
	}
	return filepath.ToSlash(rel), nil
}

// Delete removes a file saved by Save. Missing files are not an error.
func (s *LocalStore) Delete(_ context.Context, path string) error {
	clean := filepath.Clean("/" + filepath.FromSlash(path))
	if strings.Count(clean, string(os.PathSeparator)) < 2 {
		return errors.Errorf("refusing to delete %q", path)
	}
	if err := os.Remove(filepath.Join(s.root, clean)); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "deleting file")
	}
	return nil
}
