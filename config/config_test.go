package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/meenmo/eqvar/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	t.Parallel()

	if err := config.DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig invalid: %v", err)
	}
}

func TestValidateRejectsTheta(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.PDE.Theta = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for theta 1.5")
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eqvar.yaml")
	body := []byte("pde:\n  backward_std_devs: 5\nmonte_carlo:\n  pairs: 500\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.PDE.BackwardStdDevs != 5 {
		t.Fatalf("backward_std_devs = %g, want 5", cfg.PDE.BackwardStdDevs)
	}
	if cfg.MonteCarlo.Pairs != 500 {
		t.Fatalf("pairs = %d, want 500", cfg.MonteCarlo.Pairs)
	}
	// untouched keys keep their defaults
	if cfg.PDE.Theta != 0.5 || cfg.MonteCarlo.StepsPerYear != 252 {
		t.Fatalf("defaults lost: theta=%g steps=%d", cfg.PDE.Theta, cfg.MonteCarlo.StepsPerYear)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EQVAR_PDE_THETA", "1")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.PDE.Theta != 1 {
		t.Fatalf("theta = %g, want 1 from environment", cfg.PDE.Theta)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
