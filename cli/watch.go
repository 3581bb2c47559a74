package cli

import (
	"context"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"

	"go.viam.com/scanfusion/logging"
	"go.viam.com/scanfusion/ply"
)

// watchAction reports every PLY file written into a folder until interrupted.
func watchAction(c *cli.Context, logger logging.Logger) error {
	if c.NArg() != 1 {
		return errors.New("expected a folder to watch")
	}
	dir := c.Args().First()
	if c.Bool(flagExisting) {
		existing, err := ply.ReadDir(c.Context, dir, logger)
		if err != nil {
			return err
		}
		for _, l := range existing {
			printf(c.App.Writer, "%s", describe(l))
		}
	}
	err := watchDir(c.Context, dir, logger, func(l ply.Loaded) {
		printf(c.App.Writer, "%s", describe(l))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchQuietPeriod is how long a file must go unmodified before it is read.
const watchQuietPeriod = 100 * time.Millisecond

// watchDir calls onLoad with each PLY file created or rewritten in dir until ctx is done. A file
// is read once it has been quiet for watchQuietPeriod. Files that still do not parse are logged
// and skipped; the next write retries them.
func watchDir(ctx context.Context, dir string, logger logging.Logger, onLoad func(ply.Loaded)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer utils.UncheckedErrorFunc(watcher.Close)
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "cannot watch %q", dir)
	}
	logger.Debugw("watching for ply files", "dir", dir)

	debouncers := map[string]func(func()){}
	settled := make(chan string)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("watch error", "dir", dir, "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !isPLY(ev.Name) {
				continue
			}
			name := ev.Name
			debounced, ok := debouncers[name]
			if !ok {
				debounced = debounce.New(watchQuietPeriod)
				debouncers[name] = debounced
			}
			debounced(func() {
				select {
				case settled <- name:
				case <-ctx.Done():
				}
			})
		case name := <-settled:
			doc, err := ply.Read(name)
			if err != nil {
				logger.Debugw("skipping unreadable ply file", "path", name, "error", err)
				continue
			}
			onLoad(ply.Loaded{Path: name, Document: doc})
		}
	}
}
