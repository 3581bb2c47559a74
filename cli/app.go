// Package cli contains the scanfuse command line application.
package cli

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/scanfusion/config"
	"go.viam.com/scanfusion/logging"
)

const (
	// Flags.
	flagConfig    = "config"
	flagRecording = "recording"
	flagOut       = "out"
	flagDebug     = "debug"
	flagExisting  = "existing"
	flagLogFile   = "log-file"
)

// NewApp returns the scanfuse application writing its report to out. All logging goes through
// logger.
func NewApp(out io.Writer, logger logging.Logger) *cli.App {
	var logFile *logging.FileAppender
	return &cli.App{
		Name:            "scanfuse",
		Usage:           "fuse captured scans into colored point clouds and work with PLY files",
		Writer:          out,
		ErrWriter:       out,
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotating it as it grows",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logger.SetLevel(logging.DEBUG)
			}
			if path := c.String(flagLogFile); path != "" {
				logFile = logging.NewFileAppender(path)
				logger.AddAppender(logFile)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if logFile == nil {
				return nil
			}
			return multierr.Combine(logger.Sync(), logFile.Close())
		},
		Commands: []*cli.Command{
			{
				Name:      "fuse",
				Usage:     "replay a recorded capture session and save the fused cloud",
				UsageText: "scanfuse fuse --recording <file> [--config <file>] [--out <dir>]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     flagRecording,
						Aliases:  []string{"r"},
						Usage:    "recorded capture session `FILE`",
						Required: true,
					},
					&cli.StringFlag{
						Name:    flagConfig,
						Aliases: []string{"c"},
						Usage:   "load configuration from `FILE`",
					},
					&cli.StringFlag{
						Name:  flagOut,
						Usage: "save scans into `DIR`, overriding the configured output directory",
					},
				},
				Action: func(c *cli.Context) error {
					return fuseAction(c, logger)
				},
			},
			{
				Name:      "info",
				Usage:     "describe PLY files, or every PLY file in a folder",
				ArgsUsage: "<path> [path...]",
				Action: func(c *cli.Context) error {
					return infoAction(c, logger)
				},
			},
			{
				Name:      "convert",
				Usage:     "convert between PLY, LAS and PCD by file extension",
				ArgsUsage: "<input> <output>",
				Action: func(c *cli.Context) error {
					return convertAction(c, logger)
				},
			},
			{
				Name:      "watch",
				Usage:     "report PLY files as they are written into a folder",
				ArgsUsage: "<dir>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  flagExisting,
						Usage: "report files already in the folder before watching",
					},
				},
				Action: func(c *cli.Context) error {
					return watchAction(c, logger)
				},
			},
		},
	}
}

func loadConfig(c *cli.Context, logger logging.Logger) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String(flagConfig); path != "" {
		var err error
		if cfg, err = config.Read(path); err != nil {
			return nil, err
		}
	}
	if c.String(flagOut) != "" {
		cfg.Output.Dir = c.String(flagOut)
	}
	if !c.Bool(flagDebug) {
		logger.SetLevel(cfg.Level())
	}
	return cfg, nil
}

func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}
