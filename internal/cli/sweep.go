package cli

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"
	"learning-progress-service/internal/app"
	"learning-progress-service/internal/config"
	"learning-progress-service/internal/event"
)

// NewSweepCmd runs one reconciliation pass over active sessions and exits.
func NewSweepCmd(configPath *string) *cobra.Command {
	var abandonAfter time.Duration
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire or abandon sessions left active past their deadline",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runSweep(cmd.Context(), *configPath, abandonAfter)
			return err
		},
	}
	cmd.Flags().DurationVar(&abandonAfter, "abandon-after", 0, "age past the deadline after which sessions become abandoned (default from config)")
	return cmd
}

func runSweep(ctx context.Context, configPath string, abandonAfter time.Duration) (app.SweepReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return app.SweepReport{}, err
	}
	if abandonAfter == 0 {
		abandonAfter = config.TTLDuration(cfg.Sweep.AbandonAfter, 24*time.Hour)
	}

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return app.SweepReport{}, err
	}
	defer b.Close()

	publisher, err := event.NewPublisher(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
	if err != nil {
		return app.SweepReport{}, err
	}
	defer publisher.Close()

	report, err := buildServices(cfg, b, publisher).sessions.Sweep(ctx, abandonAfter)
	if err != nil {
		return report, err
	}
	log.Printf("sweep done: scanned=%d expired=%d abandoned=%d skipped=%d",
		report.Scanned, report.Expired, report.Abandoned, report.Skipped)
	return report, nil
}
