package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cms-front/cms-front/internal/config"
	"github.com/cms-front/cms-front/internal/log"
	"github.com/cms-front/cms-front/internal/server"
)

// CMSFront is the complete auth front-end application.
type CMSFront struct {
	config     config.Config
	httpServer *server.HTTPServer
}

// NewCMSFront creates the application with all dependencies built.
func NewCMSFront(ctx context.Context, cfg config.Config) (*CMSFront, error) {
	log.LogInfoWithFields("cmsfront", "Building auth front-end", map[string]any{
		"addr":        cfg.Frontend.Addr,
		"backend":     cfg.Backend.URL,
		"apiBasePath": cfg.Frontend.BasePath(),
	})

	handler := server.NewRouter(cfg)
	httpServer := server.NewHTTPServer(handler, cfg.Frontend.Addr)

	return &CMSFront{
		config:     cfg,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and blocks until a shutdown signal or a server
// error, then shuts down gracefully.
func (c *CMSFront) Run() error {
	log.LogInfoWithFields("cmsfront", "Starting auth front-end", map[string]any{
		"addr": c.config.Frontend.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)

	go func() {
		if err := c.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var shutdownReason string
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("cmsfront", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		log.LogErrorWithFields("cmsfront", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	case <-ctx.Done():
		shutdownReason = "context cancelled"
		log.LogInfoWithFields("cmsfront", "Context cancelled, shutting down", nil)
	}

	log.LogInfoWithFields("cmsfront", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": "30s",
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := c.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("cmsfront", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("cmsfront", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return nil
}
