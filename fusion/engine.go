// Package fusion merges tracked feature points, sampled planes and depth reprojections into one
// deduplicated, colored point cloud per scan.
package fusion

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"

	"go.viam.com/scanfusion/capture"
	"go.viam.com/scanfusion/logging"
	"go.viam.com/scanfusion/pointcloud"
)

// ErrNoFrame is reported when a scan stops but no camera frame could be captured to color it.
// The resulting cloud is empty.
var ErrNoFrame = errors.New("no camera frame captured")

// planes larger than this many samples per axis are clipped to it.
const maxPlaneSteps = 4096

// Result describes one finished scan.
type Result struct {
	SessionID uuid.UUID
	Cloud     *pointcloud.Cloud
	Stats     Stats
	// Err is nil, wraps ErrNoFrame, or is the context error that cut finalize short.
	Err error
}

// Stats counts what each path contributed to a scan.
type Stats struct {
	TrackedPoints int
	PlanePoints   int
	DepthPoints   int
	// DepthRejected counts depth hits outside (0, MaxDepth).
	DepthRejected int
	// MedianDepth is the median distance of the accepted depth points.
	MedianDepth float64
	Duration    time.Duration
}

// Engine is a scan session. Start and Stop are meant to be driven by one controller; ingestion
// handlers may be called from any goroutine.
type Engine struct {
	cfg     Config
	sources capture.Sources
	grid    pointcloud.Grid
	logger  logging.Logger

	scanning atomic.Bool

	// scanMu serializes Start and Stop.
	scanMu sync.Mutex

	mu          sync.Mutex
	groups      map[capture.TrackableID][]r3.Vector
	groupOrder  []capture.TrackableID
	accepted    *pointcloud.AcceptedSet
	onStart     func(Result)
	sessionID   uuid.UUID
	startedAt   time.Time
	cloud       *pointcloud.Cloud
	stats       Stats
	unsubscribe []func()
}

// NewEngine returns an idle engine. Missing sources disable the paths that need them.
func NewEngine(cfg Config, sources capture.Sources, logger logging.Logger) (*Engine, error) {
	if err := cfg.Validate("fusion"); err != nil {
		return nil, err
	}
	grid, err := pointcloud.NewGrid(cfg.PlaneMeshResolution)
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:      cfg,
		sources:  sources,
		grid:     grid,
		logger:   logger,
		groups:   map[capture.TrackableID][]r3.Vector{},
		accepted: pointcloud.NewAcceptedSet(),
		cloud:    pointcloud.New(),
	}, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Subscribe registers the engine's handlers with the enabled feeds. Calling it again without
// Unsubscribe does nothing.
func (e *Engine) Subscribe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.unsubscribe) > 0 {
		return
	}
	if e.sources.PointClouds != nil && e.cfg.UseFeaturePoints {
		e.unsubscribe = append(e.unsubscribe, e.sources.PointClouds.SubscribePointClouds(e.HandlePointClouds))
	}
	if e.sources.Planes != nil && e.cfg.UsePlaneMesh {
		e.unsubscribe = append(e.unsubscribe, e.sources.Planes.SubscribePlanes(e.HandlePlanes))
	}
}

// Unsubscribe removes every handler registered by Subscribe.
func (e *Engine) Unsubscribe() {
	e.mu.Lock()
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()
	for _, fn := range unsubscribe {
		fn()
	}
}

// Close unsubscribes from all feeds. A scan in progress is left running.
func (e *Engine) Close(ctx context.Context) error {
	e.Unsubscribe()
	return nil
}

// IsScanning reports whether the engine is between Start and Stop.
func (e *Engine) IsScanning() bool {
	return e.scanning.Load()
}

// Cloud returns a copy of the cloud produced by the last Stop. It is empty while scanning and
// after a Stop that failed.
func (e *Engine) Cloud() *pointcloud.Cloud {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cloud.Clone()
}

// Stats returns the counts of the last Stop.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Start clears all state from the previous scan and begins collecting. onComplete, if not nil, is
// called when the scan is stopped. Start while already scanning does nothing.
func (e *Engine) Start(ctx context.Context, onComplete func(Result)) error {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()
	if e.scanning.Load() {
		return nil
	}

	e.mu.Lock()
	e.groups = map[capture.TrackableID][]r3.Vector{}
	e.groupOrder = nil
	e.accepted.Clear()
	e.cloud = pointcloud.New()
	e.stats = Stats{}
	e.onStart = onComplete
	e.sessionID = uuid.New()
	e.startedAt = time.Now()
	sessionID := e.sessionID
	e.mu.Unlock()

	if e.cfg.UseDepthData && e.sources.Depth != nil {
		if err := e.sources.Depth.RequestDepthMode(ctx, capture.DepthModeBest); err != nil {
			e.logger.Warnw("could not request depth mode", "mode", capture.DepthModeBest, "error", err)
		}
	}

	e.scanning.Store(true)
	e.logger.Infow("scan started",
		"session", sessionID,
		"feature_points", e.cfg.UseFeaturePoints,
		"plane_mesh", e.cfg.UsePlaneMesh,
		"depth_data", e.cfg.UseDepthData)
	return nil
}

// Stop ends the scan and builds the colored cloud, then calls Start's callback followed by
// onComplete. Both see the same Result. Stop while idle does nothing and calls neither.
//
// When no frame can be captured the cloud stays empty and an error wrapping ErrNoFrame is
// returned. When ctx is done before the cloud is complete the cloud stays empty and the context
// error is returned.
func (e *Engine) Stop(ctx context.Context, onComplete func(Result)) error {
	result, callbacks, ok := e.stop(ctx)
	if !ok {
		return nil
	}
	for _, cb := range append(callbacks, onComplete) {
		if cb != nil {
			cb(result)
		}
	}
	return result.Err
}

func (e *Engine) stop(ctx context.Context) (Result, []func(Result), bool) {
	e.scanMu.Lock()
	defer e.scanMu.Unlock()
	if !e.scanning.Load() {
		return Result{}, nil, false
	}

	e.mu.Lock()
	e.scanning.Store(false)
	snap := snapshot{
		groups:   lo.Map(e.groupOrder, func(id capture.TrackableID, _ int) []r3.Vector { return e.groups[id] }),
		accepted: e.accepted.Clone(),
	}
	onStart := e.onStart
	e.onStart = nil
	sessionID := e.sessionID
	startedAt := e.startedAt
	e.mu.Unlock()

	cloud, stats, err := e.finalize(ctx, snap)
	stats.Duration = time.Since(startedAt)
	if err != nil {
		cloud = pointcloud.New()
		e.logger.Warnw("scan stopped without a cloud", "session", sessionID, "error", err)
	} else {
		e.logger.Infow("scan stopped",
			"session", sessionID,
			"total_points", cloud.Size(),
			"tracked", stats.TrackedPoints,
			"plane", stats.PlanePoints,
			"depth", stats.DepthPoints)
	}

	e.mu.Lock()
	e.cloud = cloud
	e.stats = stats
	if err == nil {
		e.accepted = snap.accepted
	}
	e.mu.Unlock()

	return Result{SessionID: sessionID, Cloud: cloud.Clone(), Stats: stats, Err: err}, []func(Result){onStart}, true
}

// HandlePointClouds applies one tracked point notification. Each added or updated trackable
// replaces its previous points wholesale.
func (e *Engine) HandlePointClouds(ev capture.PointCloudsChanged) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.scanning.Load() || !e.cfg.UseFeaturePoints {
		return
	}
	for _, pc := range append(append([]capture.TrackedPointCloud{}, ev.Added...), ev.Updated...) {
		if pc.Positions == nil {
			continue
		}
		if _, ok := e.groups[pc.ID]; !ok {
			e.groupOrder = append(e.groupOrder, pc.ID)
		}
		e.groups[pc.ID] = append([]r3.Vector(nil), pc.Positions...)
	}
	for _, id := range ev.Removed {
		if _, ok := e.groups[id]; !ok {
			continue
		}
		delete(e.groups, id)
		e.groupOrder = lo.Without(e.groupOrder, id)
	}
}

// HandlePlanes samples every added or updated plane into the accepted set. Removed planes keep
// the points they already contributed.
func (e *Engine) HandlePlanes(ev capture.PlanesChanged) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.scanning.Load() || !e.cfg.UsePlaneMesh {
		return
	}
	for _, patch := range ev.Added {
		e.samplePatch(patch)
	}
	for _, patch := range ev.Updated {
		e.samplePatch(patch)
	}
}

// samplePatch walks a regular grid over the patch rectangle and admits every sample that falls
// inside the boundary polygon. Containment is decided in the patch's own plane. Callers hold mu.
func (e *Engine) samplePatch(patch capture.SurfacePatch) int {
	if len(patch.Boundary) < 3 {
		return 0
	}
	sizeX, sizeZ := 2*patch.HalfExtents.X, 2*patch.HalfExtents.Y
	if !isFinite(sizeX) || !isFinite(sizeZ) || sizeX < 0 || sizeZ < 0 {
		e.logger.Debugw("skipping plane with invalid extents", "id", patch.ID, "half_extents", patch.HalfExtents)
		return 0
	}
	for _, p := range patch.Boundary {
		if !isFinite(p.X) || !isFinite(p.Y) {
			e.logger.Debugw("skipping plane with invalid boundary", "id", patch.ID)
			return 0
		}
	}

	res := e.cfg.PlaneMeshResolution
	stepsX, stepsZ := planeSteps(sizeX, res), planeSteps(sizeZ, res)
	added := 0
	for x := 0; x <= stepsX; x++ {
		for z := 0; z <= stepsZ; z++ {
			local := r3.Vector{
				X: (float64(x)/float64(stepsX) - 0.5) * sizeX,
				Z: (float64(z)/float64(stepsZ) - 0.5) * sizeZ,
			}
			if !pointInPolygon(r2.Point{X: local.X, Y: local.Z}, patch.Boundary) {
				continue
			}
			world := patch.Pose.Transform(local)
			if e.accepted.Insert(e.grid.Quantize(world, res), pointcloud.OriginPlane) {
				added++
			}
		}
	}
	return added
}

func planeSteps(size, res float64) int {
	steps := int(math.Min(size/res, maxPlaneSteps))
	if steps < 1 {
		return 1
	}
	return steps
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
