package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"learning-progress-service/internal/config"
	"learning-progress-service/internal/event"
	transport "learning-progress-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	var catalogPath string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the progress server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port, catalogPath)
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "optional catalog YAML to seed before serving")
	return cmd
}

func runServer(ctx context.Context, configPath, portFlag, catalogPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	if cfg.Auth.JWTSecret == "" {
		log.Println("auth.jwtSecret is empty; every request will be rejected")
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if catalogPath != "" {
		courses, modules, err := seedCatalog(ctx, b.store, catalogPath)
		if err != nil {
			return err
		}
		log.Printf("seeded %d courses and %d modules from %s", courses, modules, catalogPath)
	}

	publisher, err := event.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		return err
	}
	defer publisher.Close()

	svc := buildServices(cfg, b, publisher)

	if cfg.Sweep.Schedule != "" {
		scheduler := cron.New()
		abandonAfter := config.TTLDuration(cfg.Sweep.AbandonAfter, 24*time.Hour)
		if _, err := scheduler.AddFunc(cfg.Sweep.Schedule, func() {
			report, err := svc.sessions.Sweep(context.Background(), abandonAfter)
			if err != nil {
				log.Printf("scheduled sweep failed: %v", err)
				return
			}
			if report.Expired+report.Abandoned > 0 {
				log.Printf("scheduled sweep: %+v", report)
			}
		}); err != nil {
			return err
		}
		scheduler.Start()
		defer scheduler.Stop()
		log.Printf("session sweep scheduled: %s", cfg.Sweep.Schedule)
	}

	router := transport.NewRouter(transport.Services{
		Sessions: svc.sessions,
		Progress: svc.progress,
		Store:    b.store,
	}, transport.Options{
		JWTSecret:      cfg.Auth.JWTSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting progress service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
