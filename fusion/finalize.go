package fusion

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"

	"go.viam.com/scanfusion/pointcloud"
	"go.viam.com/scanfusion/rimage/transform"
)

// snapshot is the ingestion state taken when a scan stops.
type snapshot struct {
	groups   [][]r3.Vector
	accepted *pointcloud.AcceptedSet
}

// finalize builds the cloud in fixed order: tracked points, plane points, then depth points. Each
// point is colored against one captured frame. Nothing is returned on error, so a canceled
// finalize never exposes a partial cloud.
func (e *Engine) finalize(ctx context.Context, snap snapshot) (*pointcloud.Cloud, Stats, error) {
	var st Stats
	if e.sources.Camera == nil {
		return nil, st, errors.Wrap(ErrNoFrame, "no camera source")
	}
	frame, err := e.sources.Camera.CaptureFrame(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, st, ctxErr
	}
	if err != nil {
		return nil, st, errors.Wrapf(ErrNoFrame, "%v", err)
	}
	if frame == nil {
		return nil, st, ErrNoFrame
	}
	cam, err := e.sources.Camera.Camera(ctx)
	if err != nil {
		return nil, st, errors.Wrapf(ErrNoFrame, "camera pose unavailable: %v", err)
	}
	if e.cfg.MirrorFrame {
		frame = frame.FlipVertical()
	}
	bp := transform.BackProjector{Camera: cam, Frame: frame}

	cloud := pointcloud.New()
	if e.cfg.UseFeaturePoints {
		for _, group := range snap.groups {
			for _, p := range group {
				cloud.Append(p, bp.Color(p))
			}
			st.TrackedPoints += len(group)
		}
	}

	if e.cfg.UsePlaneMesh {
		for _, k := range snap.accepted.Keys(pointcloud.OriginPlane) {
			p := e.grid.Position(k)
			cloud.Append(p, bp.Color(p))
			st.PlanePoints++
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}

	if e.cfg.UseDepthData && e.sources.Depth != nil {
		depths, rejected, err := e.addDepthPoints(ctx, cam, bp, snap.accepted, cloud)
		if err != nil {
			return nil, Stats{}, err
		}
		st.DepthPoints = len(depths)
		st.DepthRejected = rejected
		if median, err := stats.Median(depths); err == nil {
			st.MedianDepth = median
		}
	}
	return cloud, st, nil
}

// addDepthPoints samples the depth map on a regular stride, reprojects each hit along its camera
// ray, and appends those whose coarse cell is not yet accepted. It returns the accepted distances
// and the number of hits rejected as out of range. Only context errors are returned; a missing
// depth map contributes nothing.
func (e *Engine) addDepthPoints(
	ctx context.Context,
	cam *transform.Camera,
	bp transform.BackProjector,
	accepted *pointcloud.AcceptedSet,
	cloud *pointcloud.Cloud,
) ([]float64, int, error) {
	depthMap, err := e.sources.Depth.AcquireDepthMap(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		e.logger.Debugw("no depth map at finalize", "error", err)
		return nil, 0, nil
	}
	if depthMap == nil {
		return nil, 0, nil
	}

	width, height := depthMap.Width(), depthMap.Height()
	screenW, screenH := float64(cam.ScreenWidth()), float64(cam.ScreenHeight())
	step := e.cfg.DepthSamplingStep
	cellSize := e.cfg.depthCellSize()

	var depths []float64
	rejected := 0
	for y := 0; y < height; y += step {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		for x := 0; x < width; x += step {
			nx, ny := float64(x)/float64(width), float64(y)/float64(height)
			dist, ok, err := depthMap.DistanceAt(ctx, nx, ny)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, 0, ctxErr
				}
				e.logger.Warnw("depth query failed, skipping remaining depth samples", "error", err)
				return depths, rejected, nil
			}
			if !ok {
				continue
			}
			if !(dist > 0 && dist < e.cfg.MaxDepth) {
				rejected++
				continue
			}

			p := cam.ScreenPointToRay(nx*screenW, ny*screenH).PointAt(dist)
			if !accepted.Insert(e.grid.Quantize(p, cellSize), pointcloud.OriginDepth) {
				continue
			}
			cloud.Append(p, bp.Color(p))
			depths = append(depths, dist)
		}
	}
	return depths, rejected, nil
}
