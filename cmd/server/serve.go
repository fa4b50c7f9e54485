package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/waste-api/internal/config"
	"github.com/Brownie44l1/waste-api/internal/handlers"
	"github.com/Brownie44l1/waste-api/internal/history"
	"github.com/Brownie44l1/waste-api/internal/metrics"
	"github.com/Brownie44l1/waste-api/internal/model"
	"github.com/Brownie44l1/waste-api/internal/session"
	"github.com/Brownie44l1/waste-api/internal/store"
	"github.com/Brownie44l1/waste-api/internal/workflow"
)

func serveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP classification service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), a)
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, logger := a.settings, a.logger
	logger.Info("model asset", zap.String("model", s.Model.Path), zap.String("metadata", s.Model.MetadataPath))
	loader := model.NewSharedLoader(model.FileLoader{
		ModelPath:         s.Model.Path,
		MetadataPath:      s.Model.MetadataPath,
		SharedLibraryPath: s.Model.SharedLibraryPath,
	}, logger)
	defer func() {
		if err := loader.Close(); err != nil {
			logger.Warn("failed to close model", zap.Error(err))
		}
		if err := model.Shutdown(); err != nil {
			logger.Warn("failed to shut down onnxruntime", zap.Error(err))
		}
	}()

	svc, err := newService(ctx, s, loader, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	ln, err := net.Listen("tcp", ":"+s.Server.Port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", s.Server.Port, err)
	}
	logger.Info("server starting",
		zap.Stringer("addr", ln.Addr()),
		zap.Bool("history", s.History.Enabled),
		zap.Bool("recover_on_failure", s.Workflow.RecoverOnFailure))
	return serve(ctx, svc.httpServer(), ln, s.Server.ShutdownTimeout, logger)
}

// service is the assembled application behind the HTTP listener.
type service struct {
	router   *gin.Engine
	sessions *session.Manager
	history  *history.Repository
	logger   *zap.Logger
}

func newService(ctx context.Context, s *config.Settings, loader model.Loader, logger *zap.Logger) (*service, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewWorkflowMetrics(registry)
	if err != nil {
		return nil, err
	}

	svc := &service{logger: logger}
	var (
		recorder workflow.Recorder
		hist     handlers.History
	)
	if s.History.Enabled {
		repo, err := history.Open(ctx, s.History.Path, logger)
		if err != nil {
			return nil, err
		}
		svc.history = repo
		recorder, hist = repo, repo
	}

	images := store.NewImages(s.Session.ImageTTL)
	svc.sessions = session.NewManager(s.Session.TTL, func(id string, input workflow.FileInput) *workflow.Driver {
		return workflow.NewDriver(loader, images, input, workflow.Options{
			ID:               id,
			RecoverOnFailure: s.Workflow.RecoverOnFailure,
			Metrics:          m,
			Recorder:         recorder,
			Logger:           logger,
		})
	}, m, logger)

	h := handlers.NewHandler(handlers.Config{
		Sessions:     svc.sessions,
		Images:       images,
		Loader:       loader,
		History:      hist,
		HistoryLimit: s.History.Limit,
		Gatherer:     registry,
		MaxUpload:    s.Server.MaxUploadBytes,
		Logger:       logger,
	})

	if !s.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	svc.router = gin.New()
	svc.router.Use(gin.Recovery(), requestLogger(logger))
	svc.router.MaxMultipartMemory = s.Server.MaxUploadBytes
	h.RegisterRoutes(svc.router)
	return svc, nil
}

func (svc *service) httpServer() *http.Server {
	return &http.Server{
		Handler:           svc.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(svc.logger.Named("http")),
	}
}

// Close ends every session and closes the history database.
func (svc *service) Close() {
	svc.sessions.Close()
	if svc.history != nil {
		if err := svc.history.Close(); err != nil {
			svc.logger.Warn("failed to close history", zap.Error(err))
		}
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// serve accepts connections on ln until ctx is done, then stops accepting and
// waits up to drain for in-flight requests to finish.
func serve(ctx context.Context, server *http.Server, ln net.Listener, drain time.Duration, logger *zap.Logger) error {
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ln) }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.Duration("drain", drain))
	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drain)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("drain connections: %w", err)
	}
	if err := <-serveErr; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
