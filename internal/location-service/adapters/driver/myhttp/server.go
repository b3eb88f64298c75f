package myhttp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"bus-tracker/internal/config"
	"bus-tracker/internal/location-service/adapters/driven/bm"
	"bus-tracker/internal/location-service/adapters/driven/db"
	"bus-tracker/internal/location-service/adapters/driven/memory"
	"bus-tracker/internal/location-service/adapters/driven/sqlite"
	"bus-tracker/internal/location-service/adapters/driver/myhttp/handlers"
	"bus-tracker/internal/location-service/adapters/driver/myhttp/middleware"
	"bus-tracker/internal/location-service/adapters/driver/myhttp/ws"
	"bus-tracker/internal/location-service/core/ports/driven"
	"bus-tracker/internal/location-service/core/services"
	"bus-tracker/internal/mylogger"
)

const WaitTime = 10

type Server struct {
	cfg     *config.Config
	srv     *http.Server
	mylog   mylogger.Logger
	store   driven.PositionStore
	dir     driven.Directory
	mb      *bm.RabbitMQ
	gateway *ws.Gateway
	ctx     context.Context
	appCtx  context.Context
	closers []func() error
	mu      sync.Mutex
	wg      sync.WaitGroup
}

func NewServer(ctx, appCtx context.Context, mylog mylogger.Logger, cfg *config.Config) *Server {
	return &Server{
		ctx:    ctx,
		appCtx: appCtx,
		cfg:    cfg,
		mylog:  mylog,
	}
}

// Run connects the backends, wires the services and starts listening. It
// returns when the server stops.
func (s *Server) Run() error {
	mylog := s.mylog.Action("server_started")

	if err := s.openStore(); err != nil {
		return err
	}
	mylog.Info("position store ready", "driver", s.cfg.Store.Driver)

	if s.cfg.RabbitMq.Enabled {
		mb, err := bm.New(s.appCtx, s.cfg.RabbitMq, s.mylog)
		if err != nil {
			// The mirror is best effort; the core keeps serving without it.
			mylog.Error("message broker unavailable, event mirror disabled", err)
		} else {
			s.mb = mb
			s.closers = append(s.closers, mb.Close)
			mylog.Info("Successful message broker connection")
		}
	}

	handler := s.Configure()

	s.mu.Lock()
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%v", s.cfg.Srv.LocationServicePort),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	mylog.WithGroup("details").With("port", s.cfg.Srv.LocationServicePort).Info("server is running")
	return s.startHTTPServer()
}

// Stop provides a programmatic shutdown. Accepts a context for timeout control.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mylog.Info("Shutting down HTTP server...")

	var errs []error
	if s.srv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, WaitTime*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.mylog.Error("Failed to shut down HTTP server gracefully", err)
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}

		// Shutdown leaves hijacked websocket connections open.
		if err := s.gateway.Shutdown(shutdownCtx); err != nil {
			s.mylog.Error("Streaming connections did not drain", err)
			errs = append(errs, fmt.Errorf("websocket shutdown: %w", err))
		}
	}

	// background workers stop with ctx
	s.wg.Wait()

	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.mylog.Error("Failed to close backend", err)
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		s.mylog.Info("HTTP server shut down gracefully")
	}
	return errors.Join(errs...)
}

func (s *Server) startHTTPServer() error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		} else {
			errCh <- nil
		}
	}()

	select {
	case <-s.ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) openStore() error {
	switch s.cfg.Store.Driver {
	case "postgres":
		conn, err := db.ConnectDB(s.ctx, s.cfg.DB, s.mylog)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		s.closers = append(s.closers, func() error { conn.Close(); return nil })
		s.store = db.NewPositionRepository(conn)
		s.dir = db.NewDirectoryRepository(conn)
		return nil

	case "sqlite":
		conn, err := sqlite.Connect(s.ctx, s.cfg.Store.SQLitePath, s.mylog)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		s.closers = append(s.closers, conn.Close)
		s.store = sqlite.NewPositionRepository(conn)

	default:
		s.store = memory.NewPositionStore()
	}

	dir, err := s.loadDirectory()
	if err != nil {
		return err
	}
	s.dir = dir
	return nil
}

func (s *Server) loadDirectory() (driven.Directory, error) {
	if s.cfg.Store.DirectoryFile == "" {
		s.mylog.Warn("no directory file configured, every credential will resolve to an unknown user")
		return memory.NewDirectory(), nil
	}
	dir, err := memory.LoadDirectory(s.cfg.Store.DirectoryFile)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}
	return dir, nil
}

// Configure wires services, the websocket hub and the REST handlers, and
// starts the background workers. Workers run until ctx is cancelled.
func (s *Server) Configure() http.Handler {
	cfg := s.cfg

	hub := ws.NewHub(s.mylog, cfg.WS.PriorityWait)

	var (
		mirror driven.EventMirror
		broker driven.IEventBroker
	)
	if s.mb != nil {
		publisher := bm.NewPublisher(s.mb, cfg.RabbitMq.Exchange, s.mylog)
		s.goWorker(publisher.Run)
		mirror = publisher
		broker = s.mb
	}

	// services
	fanout := services.NewBroadcaster(s.mylog, hub, mirror)
	authService := services.NewAuthService(cfg.App.JwtSecret, cfg.App.JwtIssuer, cfg.App.JwtAudience, s.dir)
	ingestService := services.NewIngestService(s.mylog, s.store, s.dir, fanout)
	queryService := services.NewQueryService(s.mylog, s.store, s.dir, cfg.Tracking.ActiveWindow, cfg.Tracking.DemoteAfter)
	sweeper := services.NewSweeper(s.mylog, s.store, cfg.Tracking.SweepInterval, cfg.Tracking.DemoteAfter, cfg.Tracking.PurgeAfter)
	s.goWorker(sweeper.Run)

	// handlers
	errWriter := handlers.NewErrorWriter(s.mylog, cfg.IsProduction())
	locationHandler := handlers.NewLocationHandler(ingestService, queryService, errWriter, s.mylog)
	healthHandler := handlers.NewHealthHandler(s.store, broker)
	authMiddleware := middleware.NewAuthMiddleware(authService)
	gateway := ws.NewGateway(s.appCtx, hub, authService, ingestService, queryService, cfg.WS, s.mylog)
	s.gateway = gateway

	return NewRouter(s.mylog, Routes{
		Location:       locationHandler,
		Health:         healthHandler,
		Auth:           authMiddleware,
		Gateway:        gateway,
		AllowedOrigins: cfg.Srv.AllowedOrigins,
	})
}

func (s *Server) goWorker(run func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run(s.ctx)
	}()
}
