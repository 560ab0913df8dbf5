package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dativo-io/safeops/internal/config"
	"github.com/dativo-io/safeops/internal/dashboard"
	"github.com/dativo-io/safeops/internal/evidence"
	"github.com/dativo-io/safeops/internal/pipeline"
	"github.com/dativo-io/safeops/internal/server"
	"github.com/dativo-io/safeops/internal/trigger"
)

var (
	servePort     int
	serveBatch    string
	serveSchedule string
	serveJobName  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API with cron and webhook triggered runs",
	Long: `Starts the HTTP API over the log directory and evidence store.

With --batch, the batch file is registered as a job: it runs on --schedule
(standard 5-field cron, optional) and on POST /v1/triggers/<job-name>.
Set SAFEOPS_API_KEYS (comma-separated key or key:caller) to require an API key.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	serveCmd.Flags().StringVar(&serveBatch, "batch", "", "detection batch file run by the trigger job")
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "cron schedule for the trigger job")
	serveCmd.Flags().StringVar(&serveJobName, "job-name", "default", "name of the trigger job")
	rootCmd.AddCommand(serveCmd)
}

// parseAPIKeys returns a map of key -> caller name from SAFEOPS_API_KEYS
// (comma-separated; each entry key or key:caller).
func parseAPIKeys(env string) map[string]string {
	m := make(map[string]string)
	if env == "" {
		return m
	}
	for _, part := range strings.Split(env, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		caller := "default"
		if idx := strings.Index(part, ":"); idx > 0 {
			if c := strings.TrimSpace(part[idx+1:]); c != "" {
				caller = c
			}
			part = strings.TrimSpace(part[:idx])
		}
		m[part] = caller
	}
	return m
}

// serveJobs returns the trigger jobs configured by flags.
func serveJobs() ([]trigger.Job, error) {
	if serveBatch == "" {
		if serveSchedule != "" {
			return nil, errors.New("--schedule requires --batch")
		}
		return nil, nil
	}
	if _, err := os.Stat(serveBatch); err != nil {
		return nil, fmt.Errorf("batch file: %w", err)
	}
	return []trigger.Job{{Name: serveJobName, Schedule: serveSchedule, BatchPath: serveBatch}}, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	cfg.WarnIfDefaultKeys()

	jobs, err := serveJobs()
	if err != nil {
		return err
	}

	evidenceStore, err := evidence.NewStore(cfg.EvidenceDBPath(), cfg.SigningKey)
	if err != nil {
		return fmt.Errorf("initializing evidence: %w", err)
	}
	defer evidenceStore.Close()

	runner := &pipeline.JobRunner{Config: cfg}
	scheduler := trigger.NewScheduler(runner)
	if err := scheduler.Register(jobs...); err != nil {
		return fmt.Errorf("registering schedules: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	apiKeys := parseAPIKeys(os.Getenv("SAFEOPS_API_KEYS"))
	if len(apiKeys) == 0 {
		log.Warn().Msg("SAFEOPS_API_KEYS not set, API endpoints are unauthenticated")
	}

	srv := server.NewServer(
		dashboard.NewReader(cfg.LogDir),
		server.WithEvidenceStore(evidenceStore),
		server.WithWebhookHandler(trigger.NewWebhookHandler(runner, jobs...)),
		server.WithAPIKeys(apiKeys),
		server.WithCORSOrigins([]string{"*"}),
	)

	addr := fmt.Sprintf(":%d", servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: trigger.DefaultRunTimeout,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("log_dir", cfg.LogDir).
		Int("jobs", len(jobs)).
		Int("cron_entries", scheduler.Entries()).
		Msg("safeops_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
