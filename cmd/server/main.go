package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/dipak0000812/credtrack/internal/api"
	"github.com/dipak0000812/credtrack/internal/certificate"
	"github.com/dipak0000812/credtrack/internal/certificate/repository"
	"github.com/dipak0000812/credtrack/internal/config"
	"github.com/dipak0000812/credtrack/internal/logger"
	"github.com/dipak0000812/credtrack/internal/metrics"
	"github.com/dipak0000812/credtrack/internal/storage"
)

func main() {
	configPath := flag.String("config", os.Getenv("CREDTRACK_CONFIG"), "path to the YAML config file")
	flag.Parse()

	// .env is optional
	_ = godotenv.Load()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("starting credtrack certificate server")
	ctx := context.Background()

	// 1. Database
	pool, err := repository.NewConnectionPool(ctx, repository.DBConfig{
		DSN:             cfg.Database.DSN,
		MaxConnections:  cfg.Database.MaxConnections,
		MinConnections:  cfg.Database.MinConnections,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer repository.ClosePool(pool)
	db := repository.OpenDB(pool)
	defer db.Close()
	log.Info("connected to database")

	// 2. Object storage
	store, err := storage.NewS3Store(ctx, storage.Config{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		UsePathStyle:    cfg.Storage.UsePathStyle,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		PublicBaseURL:   cfg.Storage.PublicBaseURL,
	})
	if err != nil {
		return errors.Wrap(err, "create object store")
	}

	// 3. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// 4. Certificate service
	tmpl, err := certificate.LoadTemplate(cfg.Certificates.TemplatePath)
	if err != nil {
		return err
	}

	workDir := cfg.Certificates.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "credtrack-certificates")
	}
	renderer := certificate.NewChromeRenderer(certificate.ChromeConfig{
		ExecPath:    cfg.Certificates.ChromePath,
		ProfileRoot: filepath.Join(workDir, "profiles"),
		Timeout:     cfg.Certificates.RenderTimeout,
	}, certificate.NewULIDGenerator(), log.Named("renderer"))

	certs, err := certificate.NewService(certificate.Config{
		WorkDir:  workDir,
		Repo:     repository.NewPostgresAssignmentRepository(db),
		Template: tmpl,
		Renderer: renderer,
		Store:    store,
		Metrics:  m,
		Log:      log.Named("certificate"),
		AssetURL: assetURL(cfg.Certificates.AssetBaseURL),
	})
	if err != nil {
		return err
	}

	// 5. HTTP server
	router := api.NewRouter(api.RouterConfig{
		Certificates:   certs,
		Metrics:        m,
		Gatherer:       reg,
		Log:            log.Named("http"),
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
	})

	addr := ":" + strconv.Itoa(cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 6. Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("shutting down gracefully", zap.String("signal", sig.String()))
	case err := <-errCh:
		return errors.Wrap(err, "http server")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Shutdown.Timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}

	log.Info("shutdown complete")
	return nil
}

func assetURL(base string) func(string) string {
	if base == "" {
		return nil
	}
	base = strings.TrimRight(base, "/")
	return func(id string) string { return base + "/" + id }
}
