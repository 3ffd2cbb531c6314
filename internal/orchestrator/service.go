package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// ErrBootstrapInProgress is returned when RunBootstrap is called while a
// bootstrap is already running.
var ErrBootstrapInProgress = errors.New("bootstrap already in progress")

// Phase and probe names.
const (
	NamePostgres = "postgres"
	NameNATS     = "nats"
	NameStorage  = "storage"
	NameRedis    = "redis"
)

// Prober is satisfied by every client in internal/clients.
type Prober interface {
	Probe(ctx context.Context) ProbeResult
}

// Migrator is satisfied by *clients.PostgresClient.
type Migrator interface {
	Migrate(ctx context.Context) error
	Prober
}

// StreamProvisioner is satisfied by *clients.NATSClient.
type StreamProvisioner interface {
	ProvisionStreams(ctx context.Context) error
	Prober
}

// BucketProvisioner is satisfied by *clients.ObjectStore.
type BucketProvisioner interface {
	EnsureBucket(ctx context.Context) error
	Prober
}

// Dependencies lists the infrastructure the portal bootstraps. A nil field
// marks a dependency that is not configured; its phase and probe are skipped.
type Dependencies struct {
	Postgres Migrator
	NATS     StreamProvisioner
	Storage  BucketProvisioner
	Redis    Prober
}

// dependency pairs a name with its bootstrap step and health probe.
type dependency struct {
	name    string
	prepare func(ctx context.Context) error
	probe   Prober
}

// Orchestrator runs bootstrap phases and health probes.
type Orchestrator struct {
	deps []dependency

	bootstrapInProgress atomic.Bool
	lastResult          *BootstrapResult
	resultMu            sync.RWMutex
}

// New constructs an Orchestrator over deps.
func New(deps Dependencies) *Orchestrator {
	o := &Orchestrator{}
	o.deps = []dependency{
		{name: NamePostgres},
		{name: NameNATS},
		{name: NameStorage},
		{name: NameRedis},
	}
	if deps.Postgres != nil {
		o.deps[0].prepare, o.deps[0].probe = deps.Postgres.Migrate, deps.Postgres
	}
	if deps.NATS != nil {
		o.deps[1].prepare, o.deps[1].probe = deps.NATS.ProvisionStreams, deps.NATS
	}
	if deps.Storage != nil {
		o.deps[2].prepare, o.deps[2].probe = deps.Storage.EnsureBucket, deps.Storage
	}
	if deps.Redis != nil {
		o.deps[3].probe = deps.Redis
		o.deps[3].prepare = func(ctx context.Context) error {
			if r := deps.Redis.Probe(ctx); !r.OK {
				return errors.New(r.Error)
			}
			return nil
		}
	}
	return o
}

// RunBootstrap runs every phase concurrently: schema migrations, stream
// provisioning, bucket verification and a Redis ping. A phase failure is
// recorded in BootstrapResult but does not cancel the other phases.
func (o *Orchestrator) RunBootstrap(ctx context.Context) (*BootstrapResult, error) {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return nil, ErrBootstrapInProgress
	}
	defer o.bootstrapInProgress.Store(false)
	return o.bootstrap(ctx), nil
}

// StartBootstrap claims the in-progress flag and runs the bootstrap in a new
// goroutine. It returns false without starting anything when a run is
// already active.
func (o *Orchestrator) StartBootstrap(ctx context.Context) bool {
	if !o.bootstrapInProgress.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer o.bootstrapInProgress.Store(false)
		o.bootstrap(ctx)
	}()
	return true
}

func (o *Orchestrator) bootstrap(ctx context.Context) *BootstrapResult {
	result := &BootstrapResult{
		Status: StatusInProgress,
		Phases: make(map[string]PhaseResult, len(o.deps)),
	}

	ctx, span := otel.Tracer("portal-creditos").Start(ctx, "portal.bootstrap")
	defer span.End()

	slog.InfoContext(ctx, "bootstrap started")

	// A plain errgroup: one failing phase must not cancel its siblings.
	var g errgroup.Group
	for _, d := range o.deps {
		g.Go(func() error {
			var phase PhaseResult
			if d.prepare == nil {
				phase = PhaseResult{Name: d.name, Status: StatusSkipped}
			} else {
				phase = provisionToPhase(d.name, d.prepare(ctx))
			}
			logPhase(ctx, phase)
			result.Lock()
			result.Phases[d.name] = phase
			result.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	result.Status = StatusOK
	for _, phase := range result.Phases {
		if phase.Status == StatusError {
			result.Status = StatusError
			break
		}
	}

	span.SetAttributes(attribute.String("bootstrap.status", result.Status))
	if result.Status == StatusError {
		span.SetStatus(codes.Error, "one or more bootstrap phases failed")
		slog.WarnContext(ctx, "bootstrap completed with errors", "status", result.Status)
	} else {
		span.SetStatus(codes.Ok, "")
		slog.InfoContext(ctx, "bootstrap completed", "status", result.Status)
	}

	o.resultMu.Lock()
	o.lastResult = result
	o.resultMu.Unlock()

	return result
}

// RunDeepHealth probes every dependency concurrently and returns the results
// keyed by dependency name.
func (o *Orchestrator) RunDeepHealth(ctx context.Context) map[string]ProbeResult {
	results := make(map[string]ProbeResult, len(o.deps))
	var mu sync.Mutex
	var g errgroup.Group

	for _, d := range o.deps {
		g.Go(func() error {
			probe := ProbeResult{Name: d.name, OK: true, Skipped: true}
			if d.probe != nil {
				probe = d.probe.Probe(ctx)
			}
			mu.Lock()
			results[d.name] = probe
			mu.Unlock()
			return nil
		})
	}

	_ = g.Wait()
	return results
}

// Probe checks a single dependency by name. Unknown or unconfigured
// dependencies report a skipped probe.
func (o *Orchestrator) Probe(ctx context.Context, name string) ProbeResult {
	for _, d := range o.deps {
		if d.name == name && d.probe != nil {
			return d.probe.Probe(ctx)
		}
	}
	return ProbeResult{Name: name, OK: true, Skipped: true}
}

// IsBootstrapInProgress returns true while a bootstrap run is active.
func (o *Orchestrator) IsBootstrapInProgress() bool {
	return o.bootstrapInProgress.Load()
}

// IsReady returns true if the last bootstrap completed with StatusOK.
func (o *Orchestrator) IsReady() bool {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult != nil && o.lastResult.Status == StatusOK
}

// LastResult returns the most recent completed bootstrap, or nil.
func (o *Orchestrator) LastResult() *BootstrapResult {
	o.resultMu.RLock()
	defer o.resultMu.RUnlock()
	return o.lastResult
}

// logPhase emits a trace-correlated log for a bootstrap phase result.
func logPhase(ctx context.Context, p PhaseResult) {
	switch p.Status {
	case StatusOK:
		slog.InfoContext(ctx, "bootstrap phase ok", "phase", p.Name)
	case StatusSkipped:
		slog.InfoContext(ctx, "bootstrap phase skipped", "phase", p.Name)
	default:
		slog.WarnContext(ctx, "bootstrap phase failed", "phase", p.Name, "error", p.Error)
	}
}

func provisionToPhase(name string, err error) PhaseResult {
	if err == nil {
		return PhaseResult{Name: name, Status: StatusOK}
	}
	return PhaseResult{Name: name, Status: StatusError, Error: err.Error()}
}
