package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"

	"github.com/meenmo/eqvar/logging"
)

func TestNewWritesJSONToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "eqvar.log")
	logger, err := logging.New(logging.Config{Level: "debug", Format: "json", Output: path})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	logger.Debug("forward pde solved")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"forward pde solved"`) {
		t.Fatalf("log file missing message: %s", data)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	t.Parallel()

	logger, err := logging.New(logging.Config{Level: "verbose", Format: "console", Output: "stderr"})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be disabled when the level is unknown")
	}
}

func TestOrNop(t *testing.T) {
	t.Parallel()

	if logging.OrNop(nil) == nil {
		t.Fatalf("OrNop(nil) returned nil")
	}
}
