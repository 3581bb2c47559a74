package fusion

import (
	"math"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Defaults for a zero Config.
const (
	DefaultDepthSamplingStep   = 4
	DefaultPlaneMeshResolution = 0.05
	DefaultDepthCellMultiplier = 2
	DefaultMaxDepth            = 20.0
)

// Config selects the ingestion paths of an Engine and their sampling densities.
type Config struct {
	UseFeaturePoints bool `json:"use_feature_points"`
	UsePlaneMesh     bool `json:"use_plane_mesh"`
	UseDepthData     bool `json:"use_depth_data"`
	// DepthSamplingStep is the pixel stride over the depth map.
	DepthSamplingStep int `json:"depth_sampling_step"`
	// PlaneMeshResolution is the plane sampling step and the fine grid cell size.
	PlaneMeshResolution float64 `json:"plane_mesh_resolution"`
	// DepthCellMultiplier scales the fine cell to the coarse cell used for depth points.
	DepthCellMultiplier int `json:"depth_cell_multiplier"`
	// MaxDepth is the exclusive upper bound of accepted depth distances.
	MaxDepth float64 `json:"max_depth"`
	// MirrorFrame flips captured frames top to bottom before coloring.
	MirrorFrame bool `json:"mirror_frame"`
}

// DefaultConfig returns a config with every path enabled.
func DefaultConfig() Config {
	return Config{
		UseFeaturePoints:    true,
		UsePlaneMesh:        true,
		UseDepthData:        true,
		DepthSamplingStep:   DefaultDepthSamplingStep,
		PlaneMeshResolution: DefaultPlaneMeshResolution,
		DepthCellMultiplier: DefaultDepthCellMultiplier,
		MaxDepth:            DefaultMaxDepth,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.DepthSamplingStep < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("depth_sampling_step must be at least 1, got %d", cfg.DepthSamplingStep))
	}
	if !(cfg.PlaneMeshResolution > 0) || math.IsInf(cfg.PlaneMeshResolution, 0) {
		return utils.NewConfigValidationError(path,
			errors.Errorf("plane_mesh_resolution must be positive, got %v", cfg.PlaneMeshResolution))
	}
	if cfg.DepthCellMultiplier < 1 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("depth_cell_multiplier must be at least 1, got %d", cfg.DepthCellMultiplier))
	}
	if !(cfg.MaxDepth > 0) {
		return utils.NewConfigValidationError(path, errors.Errorf("max_depth must be positive, got %v", cfg.MaxDepth))
	}
	return nil
}

func (cfg *Config) depthCellSize() float64 {
	return cfg.PlaneMeshResolution * float64(cfg.DepthCellMultiplier)
}
