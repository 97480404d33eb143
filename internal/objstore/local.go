// Package objstore lists source objects for discovery.
package objstore

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go-trip-pipeline/internal/model"
)

// LocalLister lists files under a root directory as if it were a bucket.
// Keys are slash-separated paths relative to the root.
type LocalLister struct {
	root string
}

func NewLocalLister(root string) *LocalLister {
	return &LocalLister{root: root}
}

// Root returns the listed directory.
func (l *LocalLister) Root() string { return l.root }

// List walks the tree and returns regular files whose key starts with
// prefix. A missing root lists nothing.
func (l *LocalLister) List(ctx context.Context, prefix string) ([]model.SourceObject, error) {
	var out []model.SourceObject
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == l.root && os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, model.SourceObject{
			Key:          key,
			URI:          l.URI(model.ObjectRef{Key: key}),
			LastModified: info.ModTime().UTC(),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// URI is the absolute path of a key, which the warehouse reads directly.
// The bucket is ignored.
func (l *LocalLister) URI(ref model.ObjectRef) string {
	abs, err := filepath.Abs(filepath.Join(l.root, filepath.FromSlash(path.Clean("/" + ref.Key))))
	if err != nil {
		return filepath.Join(l.root, filepath.FromSlash(ref.Key))
	}
	return abs
}
