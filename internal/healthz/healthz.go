// Package healthz reports store and image-provider readiness over HTTP and
// the standard gRPC health protocol.
package healthz

import (
	"context"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name for the triage engine.
const ServiceName = "vetcheck.Triage"

// DefaultTimeout bounds a single readiness check.
const DefaultTimeout = 5 * time.Second

// Pinger is implemented by the session store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessProber is implemented by the image analysis orchestrator.
type ReadinessProber interface {
	Readiness(ctx context.Context) map[string]error
}

// Report is the outcome of one readiness check.
type Report struct {
	Database  error
	Providers map[string]error
}

// Serving is true while the store is reachable. Image providers degrade to
// the heuristic fallback so their failures never stop serving.
func (r Report) Serving() bool { return r.Database == nil }

// Degraded is true when any dependency failed its check.
func (r Report) Degraded() bool {
	if r.Database != nil {
		return true
	}
	for _, err := range r.Providers {
		if err != nil {
			return true
		}
	}
	return false
}

// Checks renders the report as name -> "ok" | "unreachable".
func (r Report) Checks() map[string]string {
	out := map[string]string{"api": "ok", "database": status(r.Database)}
	for name, err := range r.Providers {
		out["vision:"+name] = status(err)
	}
	return out
}

func status(err error) string {
	if err != nil {
		return "unreachable"
	}
	return "ok"
}

// Checker probes the store and the vision providers.
type Checker struct {
	db      Pinger
	vision  ReadinessProber
	timeout time.Duration
}

// NewChecker returns a Checker. vision may be nil.
func NewChecker(db Pinger, vision ReadinessProber, timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{db: db, vision: vision, timeout: timeout}
}

// Check runs every probe under the checker's timeout.
func (c *Checker) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var rep Report
	if c.db != nil {
		rep.Database = c.db.Ping(ctx)
	}
	if c.vision != nil {
		rep.Providers = c.vision.Readiness(ctx)
	}
	return rep
}

// Server serves grpc.health.v1.Health and keeps its status in step with a Checker.
type Server struct {
	checker *Checker
	health  *health.Server
	grpc    *grpc.Server
	logger  *slog.Logger
}

// NewServer registers the health service on a fresh gRPC server.
func NewServer(checker *Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		checker: checker,
		health:  health.NewServer(),
		grpc:    grpc.NewServer(),
		logger:  logger,
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// Refresh runs one check and publishes the result for "" and ServiceName.
func (s *Server) Refresh(ctx context.Context) Report {
	rep := s.checker.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if !rep.Serving() {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("Health check failed", "error", rep.Database)
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	return rep
}

// Watch refreshes status every interval until ctx is done. The returned
// channel closes when the watcher exits.
func (s *Server) Watch(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	s.Refresh(ctx)
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
	return done
}

// Serve blocks serving gRPC on lis.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and drains the gRPC server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
