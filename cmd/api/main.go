package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/yourorg/bulk-tickets/internal/api"
	"github.com/yourorg/bulk-tickets/internal/bulk"
	"github.com/yourorg/bulk-tickets/internal/clock"
	"github.com/yourorg/bulk-tickets/internal/config"
	"github.com/yourorg/bulk-tickets/internal/helpdesk"
	"github.com/yourorg/bulk-tickets/internal/logging"
	"github.com/yourorg/bulk-tickets/internal/metrics"
	"github.com/yourorg/bulk-tickets/internal/storage"
	"github.com/yourorg/bulk-tickets/internal/throttle"
)

func main() {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	cfg := config.FromEnv()
	zl := logging.New(cfg.LogLevel)
	defer zl.Sync()

	configErr := cfg.Validate()
	zl.Info("helpdesk configuration",
		zap.String("domain", cfg.Domain),
		zap.String("base_url", cfg.BaseURL),
		zap.String("api_key", config.Mask(cfg.APIKey)),
		zap.Int("api_key_length", len(cfg.APIKey)),
	)
	if configErr != nil {
		zl.Error("helpdesk configuration invalid, bulk sends are disabled", zap.Error(configErr))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	hd := helpdesk.NewClient(helpdesk.Config{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		TicketType: cfg.TicketType,
		Logger:     zl,
	})
	svc := bulk.New(bulk.Config{
		Submitter:          hd,
		Limiter:            throttle.NewGate(cfg.SendDelay, clock.Real()),
		Logger:             zl,
		CredentialsErr:     configErr,
		IgnoreColumns:      cfg.IgnoreColumns,
		DefaultDisposition: cfg.DefaultDisposition,
	})

	var archiver *api.Archiver
	if cfg.ArchiveURI != "" {
		var s3c *storage.S3Client
		if strings.HasPrefix(cfg.ArchiveURI, "s3://") {
			c, err := storage.NewS3(ctx)
			if err != nil {
				log.Fatalf("s3 init: %v", err)
			}
			s3c = c
		}
		archiver = api.NewArchiver(storage.New(s3c), cfg.ArchiveURI, zl)
	}

	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(api.RouterConfig{
		Runner:         svc,
		Helpdesk:       hd,
		Archiver:       archiver,
		Metrics:        metrics.Handler(),
		ConfigErr:      configErr,
		MaxUploadBytes: cfg.MaxUploadBytes,
		AllowOrigins:   cfg.AllowOrigins,
		Logger:         zl,
	})

	// Startup auth check only logs; the server comes up either way.
	if configErr == nil {
		go checkAuth(ctx, hd, zl)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zl.Info("server starting", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to start server: %v", err)
	}
}

type authVerifier interface {
	VerifyAuth(ctx context.Context) helpdesk.AuthCheck
}

func checkAuth(ctx context.Context, v authVerifier, zl *zap.Logger) {
	check := v.VerifyAuth(ctx)
	if check.OK {
		zl.Info("helpdesk authentication ok", zap.String("account", check.AccountName))
		return
	}
	zl.Error("helpdesk authentication failed",
		zap.Int("status", check.StatusCode),
		zap.String("error", check.Error),
		zap.String("response", check.RawResponse),
	)
}
