package cli

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/scanfusion/capture/fake"
	"go.viam.com/scanfusion/fusion"
	"go.viam.com/scanfusion/logging"
	"go.viam.com/scanfusion/scan"
)

// fuseAction replays a recording between a scan start and stop, then saves the result.
func fuseAction(c *cli.Context, logger logging.Logger) error {
	cfg, err := loadConfig(c, logger)
	if err != nil {
		return err
	}
	dev, err := fake.ReadRecording(c.String(flagRecording))
	if err != nil {
		return err
	}

	engine, err := fusion.NewEngine(cfg.Fusion, dev.Sources(), logger.Sublogger("fusion"))
	if err != nil {
		return err
	}
	engine.Subscribe()
	defer func() {
		if err := engine.Close(c.Context); err != nil {
			logger.Warnw("error closing engine", "error", err)
		}
	}()

	ctrl, err := scan.NewController(engine, cfg.Output.Dir, cfg.Output.Formats, nil, logger.Sublogger("scan"))
	if err != nil {
		return err
	}
	if _, err := ctrl.Toggle(c.Context); err != nil {
		return err
	}
	if err := dev.Replay(c.Context); err != nil {
		return errors.Wrap(err, "replay interrupted")
	}
	if _, err := ctrl.Toggle(c.Context); err != nil {
		return err
	}

	st := engine.Stats()
	printf(c.App.Writer, "fused %d points (tracked %d, plane %d, depth %d, depth rejected %d) in %s",
		st.TrackedPoints+st.PlanePoints+st.DepthPoints,
		st.TrackedPoints, st.PlanePoints, st.DepthPoints, st.DepthRejected, st.Duration)
	saved := ctrl.LastSaved()
	if len(saved) == 0 {
		printf(c.App.Writer, "nothing saved")
		return nil
	}
	printf(c.App.Writer, "saved %s", strings.Join(saved, ", "))
	return nil
}
