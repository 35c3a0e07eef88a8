// Package pmconfig provides configuration loading and validation for the
// parallel manager, mirroring the layered yaml-tagged config + Validate
// pattern the teacher's internal/config package uses.
package pmconfig

import (
	"os"
	"time"

	"github.com/cellmesh/parallelmgr/internal/pmerrors"
	"gopkg.in/yaml.v3"
)

// Mode selects the logging profile: development favors readable console
// output, production favors structured JSON.
type Mode string

const (
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// DefaultLBProps is the physics property set spec.md §4.3 step 1 defaults to.
var DefaultLBProps = []string{
	"x", "y", "z",
	"ax", "ay", "az",
	"u", "v", "w",
	"au", "av", "aw",
	"rho", "arho",
	"m", "h",
	"gid", "tag",
}

// DomainLimits is an optional fixed spatial domain. The manager always
// derives bounds from the global particle extrema each update; when the
// domain is enabled, Update fails with an InvariantViolation if those
// extrema fall outside it.
type DomainLimits struct {
	Enabled bool    `yaml:"enabled"`
	MinX    float64 `yaml:"min_x"`
	MinY    float64 `yaml:"min_y"`
	MaxX    float64 `yaml:"max_x"`
	MaxY    float64 `yaml:"max_y"`
}

// Config is the manager's construction-time configuration (spec.md §6).
// Dimension is accepted but ignored beyond 2 (cellgrid is 2D-only, per
// SPEC_FULL.md §9).
type Config struct {
	Mode Mode `yaml:"mode"`

	Dimension     int          `yaml:"dimension"`
	ParticleArray []string     `yaml:"particle_arrays"`
	RadiusScale   float64      `yaml:"radius_scale"`
	GhostLayers   int          `yaml:"ghost_layers"`
	Domain        DomainLimits `yaml:"domain"`
	LBProps       []string     `yaml:"lb_props"`
	LBMethod      string       `yaml:"lb_method"`

	Communicator CommunicatorConfig `yaml:"communicator"`
}

// CommunicatorConfig selects and tunes the Communicator implementation.
// Only "local" (internal/comm.Local) is wired in this module — see
// DESIGN.md for why a networked transport isn't shipped.
type CommunicatorConfig struct {
	Kind              string `yaml:"kind"`
	CollectiveTimeout string `yaml:"collective_timeout"`
}

// Timeout parses CollectiveTimeout into the duration comm.NewLocal expects,
// the bound a rank waits for the others to enter a collective before
// failing with a TransportError. An empty string parses to zero, which
// disables the check (wait forever), matching comm.Local's documented
// zero-value semantics.
func (c CommunicatorConfig) Timeout() (time.Duration, error) {
	if c.CollectiveTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CollectiveTimeout)
	if err != nil {
		return 0, pmerrors.Wrap(pmerrors.ConfigError, err, "parsing communicator.collective_timeout %q", c.CollectiveTimeout)
	}
	return d, nil
}

// validLBMethods are the lb_method values accepted without ConfigError.
// "rib" and "hsfc" are accepted but currently alias to the RCB adapter
// (SPEC_FULL.md §9, documented limitation).
var validLBMethods = map[string]bool{"rcb": true, "rib": true, "hsfc": true}

// Default returns a configuration with spec.md §6's documented defaults.
func Default() *Config {
	return &Config{
		Mode:        ModeProduction,
		Dimension:   2,
		RadiusScale: 2.0,
		GhostLayers: 2,
		LBProps:     append([]string(nil), DefaultLBProps...),
		LBMethod:    "rcb",
		Communicator: CommunicatorConfig{
			Kind:              "local",
			CollectiveTimeout: "30s",
		},
	}
}

// Load reads and parses a YAML config file, applying it on top of Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, pmerrors.Wrap(pmerrors.ConfigError, err, "reading config file %q", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, pmerrors.Wrap(pmerrors.ConfigError, err, "parsing config file %q", path)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate performs the configuration-level ConfigError checks: a positive
// radius_scale, a non-negative ghost_layers, a non-empty lb_props list with
// no empty or repeated names, a known lb_method, an enabled domain whose
// max exceeds its min on every axis, a known communicator kind and a
// parseable collective timeout. Whether each lb_props name exists on a
// particle array is not checked here; manager.New checks it against the
// arrays it is given.
func (c *Config) Validate() error {
	if c.RadiusScale <= 0 {
		return pmerrors.New(pmerrors.ConfigError, "radius_scale must be positive, got %v", c.RadiusScale)
	}
	if c.GhostLayers < 0 {
		return pmerrors.New(pmerrors.ConfigError, "ghost_layers must be non-negative, got %d", c.GhostLayers)
	}
	if len(c.LBProps) == 0 {
		return pmerrors.New(pmerrors.ConfigError, "lb_props must not be empty")
	}
	seen := make(map[string]bool, len(c.LBProps))
	for _, name := range c.LBProps {
		if name == "" {
			return pmerrors.New(pmerrors.ConfigError, "lb_props contains an empty property name")
		}
		if seen[name] {
			return pmerrors.New(pmerrors.ConfigError, "lb_props lists %q more than once", name)
		}
		seen[name] = true
	}
	if !validLBMethods[c.LBMethod] {
		return pmerrors.New(pmerrors.ConfigError, "unknown lb_method %q", c.LBMethod)
	}
	if c.Domain.Enabled && (c.Domain.MaxX <= c.Domain.MinX || c.Domain.MaxY <= c.Domain.MinY) {
		return pmerrors.New(pmerrors.ConfigError, "invalid domain: max must exceed min on every axis")
	}
	switch c.Communicator.Kind {
	case "", "local":
	default:
		return pmerrors.New(pmerrors.ConfigError, "unknown communicator kind %q", c.Communicator.Kind)
	}
	if _, err := c.Communicator.Timeout(); err != nil {
		return err
	}
	return nil
}
