// Package scan drives a fusion engine from a single toggle and saves every finished scan to disk.
package scan

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/scanfusion/config"
	"go.viam.com/scanfusion/fusion"
	"go.viam.com/scanfusion/logging"
	"go.viam.com/scanfusion/ply"
	"go.viam.com/scanfusion/pointcloud"
)

// FileTimeFormat is the timestamp layout in saved scan names.
const FileTimeFormat = "20060102_150405"

// Controller starts and stops scans on an engine. Finished clouds are written to OutputDir as
// scan_<timestamp>.<format>, one file per configured format.
type Controller struct {
	engine    *fusion.Engine
	outputDir string
	formats   []string
	clock     clock.Clock
	logger    logging.Logger

	mu        sync.Mutex
	lastSaved []string
}

// NewController returns a controller saving into outputDir. A nil clk uses the wall clock.
func NewController(
	engine *fusion.Engine,
	outputDir string,
	formats []string,
	clk clock.Clock,
	logger logging.Logger,
) (*Controller, error) {
	out := config.Output{Dir: outputDir, Formats: formats}
	if err := out.Validate("output"); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Controller{
		engine:    engine,
		outputDir: outputDir,
		formats:   append([]string(nil), formats...),
		clock:     clk,
		logger:    logger,
	}, nil
}

// Toggle starts a scan when the engine is idle and stops it otherwise. It reports whether a scan
// is running afterwards. Errors from finalizing or saving the scan are returned by the stopping
// call.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	if !c.engine.IsScanning() {
		if err := c.engine.Start(ctx, nil); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, c.Stop(ctx)
}

// Stop stops a running scan and saves its cloud. It does nothing while idle.
func (c *Controller) Stop(ctx context.Context) error {
	var saveErr error
	stopErr := c.engine.Stop(ctx, func(result fusion.Result) {
		saveErr = c.save(result)
	})
	return multierr.Combine(stopErr, saveErr)
}

// LastSaved returns the files written for the most recent scan that produced any.
func (c *Controller) LastSaved() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lastSaved...)
}

func (c *Controller) save(result fusion.Result) error {
	if result.Err != nil {
		return nil
	}
	if result.Cloud == nil || result.Cloud.Size() == 0 {
		c.logger.Infow("scan produced no points, nothing saved", "session", result.SessionID)
		return nil
	}
	if err := os.MkdirAll(c.outputDir, 0o750); err != nil {
		return errors.Wrap(err, "cannot create output directory")
	}

	base := filepath.Join(c.outputDir, "scan_"+c.clock.Now().Format(FileTimeFormat))
	var saved []string
	for _, format := range c.formats {
		path := base + "." + format
		if err := writeCloud(result.Cloud, path, format); err != nil {
			return errors.Wrapf(err, "cannot save scan as %s", format)
		}
		saved = append(saved, path)
	}

	c.mu.Lock()
	c.lastSaved = saved
	c.mu.Unlock()
	c.logger.Infow("scan saved", "session", result.SessionID, "points", result.Cloud.Size(), "files", saved)
	return nil
}

func writeCloud(cloud *pointcloud.Cloud, path, format string) error {
	switch format {
	case config.FormatPLY:
		return ply.Write(path, cloud.Positions(), cloud.Colors())
	case config.FormatLAS:
		return pointcloud.WriteToLASFile(cloud, path)
	case config.FormatPCD:
		return pointcloud.WritePCDFile(cloud, path)
	default:
		return errors.Errorf("unknown format %q", format)
	}
}
