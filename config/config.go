// Package config holds the numerical parameters of the pricing engines.
//
// Mesh sizes, truncation widths and bump sizes were magic numbers in the
// engines; they live here so a caller can tune them per volatility regime.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/meenmo/eqvar/logging"
)

// PDEConfig controls both finite-difference engines.
type PDEConfig struct {
	// Theta blends explicit (0) and implicit (1) steps; 0.5 is Crank-Nicolson.
	Theta float64 `mapstructure:"theta"`

	// DampingSteps is the number of fully implicit start-up steps taken at
	// the beginning of the first interval to smooth the initial kink.
	DampingSteps int `mapstructure:"damping_steps"`

	// TimeSteps is the number of time steps over [0, expiry]. They are
	// distributed over the inter-dividend intervals by length.
	TimeSteps int `mapstructure:"time_steps"`

	// MinIntervalSteps is the floor of time steps in any inter-dividend interval.
	MinIntervalSteps int `mapstructure:"min_interval_steps"`

	// TimeMeshLambda bunches time nodes towards the start of each interval.
	// Zero gives a uniform mesh.
	TimeMeshLambda float64 `mapstructure:"time_mesh_lambda"`

	// ForwardSpaceNodes is the number of moneyness nodes of the forward engine.
	ForwardSpaceNodes int `mapstructure:"forward_space_nodes"`

	// ForwardMeshBunching is the hyperbolic concentration around
	// log-moneyness 0, as a fraction of the window width.
	ForwardMeshBunching float64 `mapstructure:"forward_mesh_bunching"`

	// ForwardStdDevs is the half-width of the log-moneyness window of the
	// forward engine in units of σ·√T.
	ForwardStdDevs float64 `mapstructure:"forward_std_devs"`

	// BackwardSpaceNodes is the number of log-moneyness nodes of the backward engine.
	BackwardSpaceNodes int `mapstructure:"backward_space_nodes"`

	// BackwardMeshBunching is the hyperbolic concentration around log-moneyness 0.
	BackwardMeshBunching float64 `mapstructure:"backward_mesh_bunching"`

	// BackwardStdDevs is the half-width of the log-moneyness window in units of σ·√T.
	BackwardStdDevs float64 `mapstructure:"backward_std_devs"`
}

// ReplicationConfig controls the static replication integrals.
type ReplicationConfig struct {
	// StdDevs is the half-width in log-moneyness (units of σ·√T) of the
	// integration range of the put and call legs.
	StdDevs float64 `mapstructure:"std_devs"`

	// Tolerance is the relative tolerance of the adaptive integrator.
	Tolerance float64 `mapstructure:"tolerance"`

	// MaxDepth bounds the bisection depth of the adaptive integrator.
	MaxDepth int `mapstructure:"max_depth"`
}

// MonteCarloConfig controls the simulation oracle.
type MonteCarloConfig struct {
	// Pairs is the number of antithetic path pairs.
	Pairs int `mapstructure:"pairs"`

	// StepsPerYear is the number of daily steps per year (also the
	// annualisation of the realised variance).
	StepsPerYear int `mapstructure:"steps_per_year"`

	// Seed seeds the per-worker random streams.
	Seed uint64 `mapstructure:"seed"`

	// Workers is the number of parallel path blocks.
	Workers int `mapstructure:"workers"`
}

// ValuerConfig controls the generic variance swap valuer.
type ValuerConfig struct {
	// AFewWeeks is the minimum observation period. An observation start
	// later than this makes the swap forward starting.
	AFewWeeks float64 `mapstructure:"a_few_weeks"`

	// Cutoff enables the shifted log-normal low-strike tail. Without it the
	// put leg is integrated down to the far strike limit.
	Cutoff bool `mapstructure:"cutoff"`

	// CutoffLevel is the cutoff in the units of the surface axis (strike,
	// call delta, moneyness or log-moneyness).
	CutoffLevel float64 `mapstructure:"cutoff_level"`

	// CutoffSpread is the spacing, in axis units, of the second point used
	// to fit the shifted log-normal tail below the cutoff.
	CutoffSpread float64 `mapstructure:"cutoff_spread"`

	// StdDevs sets the far strike limits of the replication integral.
	StdDevs float64 `mapstructure:"std_devs"`
}

// PricerConfig controls the bump-and-reprice sensitivities.
type PricerConfig struct {
	// SpotBump is the relative spot bump of delta and gamma.
	SpotBump float64 `mapstructure:"spot_bump"`

	// VolBump is the absolute vol shift of vega and bucketed vega.
	VolBump float64 `mapstructure:"vol_bump"`

	// DividendBump is the bump of α (relative and absolute) and β.
	DividendBump float64 `mapstructure:"dividend_bump"`

	// Workers bounds the number of bump scenarios priced concurrently.
	Workers int `mapstructure:"workers"`
}

// Config groups every section.
type Config struct {
	PDE         PDEConfig         `mapstructure:"pde"`
	Replication ReplicationConfig `mapstructure:"replication"`
	MonteCarlo  MonteCarloConfig  `mapstructure:"monte_carlo"`
	Valuer      ValuerConfig      `mapstructure:"valuer"`
	Pricer      PricerConfig      `mapstructure:"pricer"`
	Logging     logging.Config    `mapstructure:"logging"`
}

// DefaultConfig provides values that keep the three pricing methods within
// 1e-3 relative of each other for equity vols between 10% and 60% and
// expiries up to five years.
func DefaultConfig() Config {
	return Config{
		PDE: PDEConfig{
			Theta:                0.5,
			DampingSteps:         2,
			TimeSteps:            200,
			MinIntervalSteps:     20,
			TimeMeshLambda:       3,
			ForwardSpaceNodes:    200,
			ForwardMeshBunching:  0.05,
			ForwardStdDevs:       6,
			BackwardSpaceNodes:   200,
			BackwardMeshBunching: 0.1,
			BackwardStdDevs:      4,
		},
		Replication: ReplicationConfig{
			StdDevs:   10,
			Tolerance: 1e-10,
			MaxDepth:  20,
		},
		MonteCarlo: MonteCarloConfig{
			Pairs:        10000,
			StepsPerYear: 252,
			Seed:         20120914,
			Workers:      4,
		},
		Valuer: ValuerConfig{
			AFewWeeks:    0.05,
			CutoffLevel:  0.5,
			CutoffSpread: 0.05,
			StdDevs:      12,
		},
		Pricer: PricerConfig{
			SpotBump:     1e-5,
			VolBump:      1e-5,
			DividendBump: 1e-5,
			Workers:      4,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Validate rejects settings the engines cannot run with.
func (c Config) Validate() error {
	switch {
	case c.PDE.Theta < 0 || c.PDE.Theta > 1:
		return fmt.Errorf("Config.Validate: pde.theta %g outside [0, 1]", c.PDE.Theta)
	case c.PDE.TimeSteps < 1 || c.PDE.MinIntervalSteps < 1:
		return fmt.Errorf("Config.Validate: pde time steps must be positive")
	case c.PDE.ForwardSpaceNodes < 5 || c.PDE.BackwardSpaceNodes < 5:
		return fmt.Errorf("Config.Validate: pde space nodes must be at least 5")
	case c.PDE.ForwardMeshBunching <= 0 || c.PDE.BackwardMeshBunching <= 0:
		return fmt.Errorf("Config.Validate: pde mesh bunching must be positive")
	case c.PDE.ForwardStdDevs <= 0 || c.PDE.BackwardStdDevs <= 0:
		return fmt.Errorf("Config.Validate: pde std devs must be positive")
	case c.Replication.StdDevs <= 0 || c.Replication.Tolerance <= 0:
		return fmt.Errorf("Config.Validate: replication std devs and tolerance must be positive")
	case c.MonteCarlo.Pairs < 2 || c.MonteCarlo.StepsPerYear < 1:
		return fmt.Errorf("Config.Validate: monte carlo needs at least 2 pairs and 1 step per year")
	case c.Valuer.AFewWeeks < 0 || c.Valuer.CutoffSpread <= 0:
		return fmt.Errorf("Config.Validate: valuer period must be non-negative and cutoff spread positive")
	case c.Pricer.SpotBump <= 0 || c.Pricer.VolBump <= 0 || c.Pricer.DividendBump <= 0:
		return fmt.Errorf("Config.Validate: pricer bumps must be positive")
	}
	return nil
}

// Load reads a YAML, JSON or TOML file on top of DefaultConfig. Environment
// variables prefixed EQVAR_ override file values (EQVAR_PDE_THETA for
// pde.theta). An empty path reads the environment only.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("EQVAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config.Load: read %s: %w", path, err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config.Load: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

// bindDefaults registers every key so that AutomaticEnv can see keys absent
// from the file.
func bindDefaults(v *viper.Viper, c Config) {
	defaults := map[string]any{
		"pde.theta":                  c.PDE.Theta,
		"pde.damping_steps":          c.PDE.DampingSteps,
		"pde.time_steps":             c.PDE.TimeSteps,
		"pde.min_interval_steps":     c.PDE.MinIntervalSteps,
		"pde.time_mesh_lambda":       c.PDE.TimeMeshLambda,
		"pde.forward_space_nodes":    c.PDE.ForwardSpaceNodes,
		"pde.forward_mesh_bunching":  c.PDE.ForwardMeshBunching,
		"pde.forward_std_devs":       c.PDE.ForwardStdDevs,
		"pde.backward_space_nodes":   c.PDE.BackwardSpaceNodes,
		"pde.backward_mesh_bunching": c.PDE.BackwardMeshBunching,
		"pde.backward_std_devs":      c.PDE.BackwardStdDevs,
		"replication.std_devs":       c.Replication.StdDevs,
		"replication.tolerance":      c.Replication.Tolerance,
		"replication.max_depth":      c.Replication.MaxDepth,
		"monte_carlo.pairs":          c.MonteCarlo.Pairs,
		"monte_carlo.steps_per_year": c.MonteCarlo.StepsPerYear,
		"monte_carlo.seed":           c.MonteCarlo.Seed,
		"monte_carlo.workers":        c.MonteCarlo.Workers,
		"valuer.a_few_weeks":         c.Valuer.AFewWeeks,
		"valuer.cutoff":              c.Valuer.Cutoff,
		"valuer.cutoff_level":        c.Valuer.CutoffLevel,
		"valuer.cutoff_spread":       c.Valuer.CutoffSpread,
		"valuer.std_devs":            c.Valuer.StdDevs,
		"pricer.spot_bump":           c.Pricer.SpotBump,
		"pricer.vol_bump":            c.Pricer.VolBump,
		"pricer.dividend_bump":       c.Pricer.DividendBump,
		"pricer.workers":             c.Pricer.Workers,
		"logging.level":              c.Logging.Level,
		"logging.format":             c.Logging.Format,
		"logging.output":             c.Logging.Output,
		"logging.development":        c.Logging.Development,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}
