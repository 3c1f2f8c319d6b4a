package app

import (
	"errors"

	"github.com/pexa-ARavichandran/batect/internal/planner"
)

// Config holds everything a single App run needs.
type Config struct {
	ProjectPath string // a single .hcl file or a directory of them

	DaemonURL          string
	InsecureSkipVerify bool

	HealthcheckPort int

	LogFormat string
	LogLevel  string

	WorkerCount   int
	CleanupPolicy planner.CleanupPolicy
}

// NewConfig validates cfg, mirroring the teacher's app.NewConfig gate: the
// required fields are checked once, here, rather than scattered across the
// CLI and the run path.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.ProjectPath == "" {
		return nil, errors.New("ProjectPath is a required configuration field and cannot be empty")
	}
	if cfg.DaemonURL == "" {
		return nil, errors.New("DaemonURL is a required configuration field and cannot be empty")
	}
	return &cfg, nil
}
