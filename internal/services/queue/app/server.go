// Package app wires the queue runtime: storage, push, auth, and the HTTP and
// health listeners.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/louisbranch/handraise/internal/services/queue/api/httpapi"
	"github.com/louisbranch/handraise/internal/services/queue/auth"
	"github.com/louisbranch/handraise/internal/services/queue/domain"
	"github.com/louisbranch/handraise/internal/services/queue/push/fcm"
	"github.com/louisbranch/handraise/internal/services/queue/storage/sqlite"
)

const shutdownTimeout = 5 * time.Second

// Options configures the queue server.
type Options struct {
	// HTTPAddr is the JSON API listen address.
	HTTPAddr string
	// HealthAddr is the gRPC health listen address.
	HealthAddr string
	// DBPath is the sqlite database file path.
	DBPath string
	// FirebaseProjectID enables Firebase auth and push. Empty runs in
	// development mode: static token auth and no push dispatch.
	FirebaseProjectID string
	// Logger receives structured request and dispatch logs.
	Logger *slog.Logger
}

// Server hosts the queue HTTP API and its gRPC health endpoint.
type Server struct {
	httpListener   net.Listener
	healthListener net.Listener
	httpServer     *http.Server
	grpcServer     *grpc.Server
	health         *health.Server
	store          *sqlite.Store
}

// New creates a configured queue server listening on the provided addresses.
func New(ctx context.Context, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	httpListener, err := net.Listen("tcp", opts.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", opts.HTTPAddr, err)
	}
	healthListener, err := net.Listen("tcp", opts.HealthAddr)
	if err != nil {
		_ = httpListener.Close()
		return nil, fmt.Errorf("listen on %s: %w", opts.HealthAddr, err)
	}

	store, err := sqlite.Open(opts.DBPath)
	if err != nil {
		_ = httpListener.Close()
		_ = healthListener.Close()
		return nil, err
	}

	var sender domain.PushSender
	var verifier auth.TokenVerifier = auth.StaticVerifier{}
	if strings.TrimSpace(opts.FirebaseProjectID) != "" {
		app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: opts.FirebaseProjectID})
		if err != nil {
			_ = store.Close()
			_ = httpListener.Close()
			_ = healthListener.Close()
			return nil, fmt.Errorf("firebase app: %w", err)
		}
		fcmSender, err := fcm.NewSender(ctx, app)
		if err != nil {
			_ = store.Close()
			_ = httpListener.Close()
			_ = healthListener.Close()
			return nil, err
		}
		firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, app)
		if err != nil {
			_ = store.Close()
			_ = httpListener.Close()
			_ = healthListener.Close()
			return nil, err
		}
		sender = fcmSender
		verifier = firebaseVerifier
	} else {
		opts.Logger.Warn("no firebase project configured, using static auth and no push dispatch")
	}

	service := domain.NewService(store, sender, nil, nil, opts.Logger)
	apiServer := httpapi.NewServer(service, verifier, opts.Logger)

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)

	return &Server{
		httpListener:   httpListener,
		healthListener: healthListener,
		httpServer:     &http.Server{Handler: apiServer},
		grpcServer:     grpcServer,
		health:         healthServer,
		store:          store,
	}, nil
}

// Addr returns the HTTP listener address.
func (s *Server) Addr() string {
	if s == nil || s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// HealthAddr returns the gRPC health listener address.
func (s *Server) HealthAddr() string {
	if s == nil || s.healthListener == nil {
		return ""
	}
	return s.healthListener.Addr().String()
}

// Run creates and serves a queue server until context cancellation.
func Run(ctx context.Context, opts Options) error {
	server, err := New(ctx, opts)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts both listeners until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("queue API listening at %v", s.httpListener.Addr())
	log.Printf("queue health listening at %v", s.healthListener.Addr())

	serveErr := make(chan error, 2)
	go func() {
		err := s.httpServer.Serve(s.httpListener)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		serveErr <- err
	}()
	go func() {
		err := s.grpcServer.Serve(s.healthListener)
		if errors.Is(err, grpc.ErrServerStopped) {
			err = nil
		}
		serveErr <- err
	}()

	select {
	case <-ctx.Done():
		s.shutdown()
		<-serveErr
		<-serveErr
		return nil
	case err := <-serveErr:
		s.shutdown()
		<-serveErr
		if err != nil {
			return fmt.Errorf("serve queue: %w", err)
		}
		return nil
	}
}

func (s *Server) shutdown() {
	if s.health != nil {
		s.health.Shutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.httpServer.Shutdown(shutdownCtx)
	s.grpcServer.GracefulStop()
}

// Close releases queue server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.httpServer != nil {
		_ = s.httpServer.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}
}
