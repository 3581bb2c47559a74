package ply

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/scanfusion/logging"
)

// Loaded is one document read by ReadDir.
type Loaded struct {
	Path     string
	Document *Document
}

// ReadDir loads every .ply file under dir, including subdirectories, in path order. Files that
// fail to parse are logged and skipped. Only a missing directory or a canceled context fail the
// call.
func ReadDir(ctx context.Context, dir string, logger logging.Logger) ([]Loaded, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot find folder %q", dir)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("%q is not a folder", dir)
	}

	var paths []string
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ".ply") {
			paths = append(paths, path)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Strings(paths)
	logger.Debugw("found ply files", "dir", dir, "count", len(paths))

	docs := make([]*Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := Read(path)
			if err != nil {
				logger.Warnw("skipping ply file", "path", path, "error", err)
				return nil
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Loaded, 0, len(paths))
	for i, doc := range docs {
		if doc != nil {
			out = append(out, Loaded{Path: paths[i], Document: doc})
		}
	}
	return out, nil
}
