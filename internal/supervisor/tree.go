package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration
type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64 // seconds
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// DefaultTreeConfig returns the suture defaults
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree supervises the long-running services. Background maintenance runs
// under its own supervisor so a crashing job does not restart the API.
type Tree struct {
	root        *suture.Supervisor
	api         *suture.Supervisor
	maintenance *suture.Supervisor
}

// NewTree creates the supervisor tree. Zero config fields take the defaults.
func NewTree(logger *slog.Logger, cfg TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = def.FailureDecay
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = def.FailureBackoff
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	// MustHook has a pointer receiver
	hook := (&sutureslog.Handler{Logger: logger}).MustHook()

	spec := suture.Spec{
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	}
	rootSpec := spec
	rootSpec.EventHook = hook

	t := &Tree{
		root:        suture.New("trackmap", rootSpec),
		api:         suture.New("api", spec),
		maintenance: suture.New("maintenance", spec),
	}
	t.root.Add(t.api)
	t.root.Add(t.maintenance)
	return t
}

// AddAPIService adds a service to the API supervisor
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// AddMaintenanceService adds a service to the maintenance supervisor
func (t *Tree) AddMaintenanceService(svc suture.Service) suture.ServiceToken {
	return t.maintenance.Add(svc)
}

// Serve runs the tree until ctx is cancelled
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
