package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/turion/turionlink/api/octoprint"
	"github.com/turion/turionlink/config"
	"github.com/turion/turionlink/infra/ftps"
	"github.com/turion/turionlink/infra/logger"
	"github.com/turion/turionlink/infra/metrics"
	"github.com/turion/turionlink/infra/mqtt"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OctoPrint-compatible front-end",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New("serve")

	var sessionMetrics *metrics.SessionMetrics
	if cfg.Metrics.Enabled {
		if sessionMetrics, err = metrics.NewSessionMetrics(nil); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Addr, metrics.Handler()); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	dialers := octoprint.Dialers{
		FTPS: func(host, user, pass string) (octoprint.Uploader, error) {
			return ftps.Dial(host, ftps.DefaultPort, user, pass)
		},
		Printer: func(host, user, pass string) (octoprint.PrintStarter, error) {
			return mqtt.NewSession(mqtt.Config{
				Host:                  host,
				Username:              user,
				Password:              pass,
				ConnectTimeoutSeconds: cfg.Printer.ConnectTimeoutSeconds,
				ReplyTimeoutSeconds:   cfg.Printer.ReplyTimeoutSeconds,
			}, mqtt.WithMetrics(sessionMetrics))
		},
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           octoprint.NewRouter(dialers, log),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown: %v", err)
		}
	}()

	log.Infof("listening on %s", cfg.Server.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
