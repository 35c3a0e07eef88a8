// Package telemetry wraps zap structured logging and Prometheus metrics
// for the parallel manager, grounded on the teacher's gateway load
// balancer's use of *zap.Logger for lifecycle logs and its
// LoadBalancerMetrics CounterVec/HistogramVec/GaugeVec trio.
package telemetry

import (
	"github.com/cellmesh/parallelmgr/internal/pmconfig"
	"github.com/cellmesh/parallelmgr/internal/pmerrors"
	"go.uber.org/zap"
)

// NewLogger builds a *zap.Logger selected by mode, matching the teacher's
// zap.NewProduction/zap.NewDevelopment split.
func NewLogger(mode pmconfig.Mode) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch mode {
	case pmconfig.ModeDevelopment:
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.ConfigError, err, "building logger for mode %q", mode)
	}
	return logger, nil
}
