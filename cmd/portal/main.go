package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aliuyar1234/projectportal/internal/app"
	"github.com/aliuyar1234/projectportal/internal/config"
	"github.com/aliuyar1234/projectportal/internal/retention"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "admin" {
		os.Exit(runAdmin(os.Args[2:]))
	}
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		return 1
	}
	defer application.Close()

	scheduler, err := setupCron(cfg, application.Services)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to setup cron: %v\n", err)
		return 1
	}
	scheduler.Start()
	defer func() {
		<-scheduler.Stop().Done()
	}()

	if err := application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Server error")
		return 1
	}
	log.Info().Msg("Shutdown complete")
	return 0
}

// setupCron schedules the nightly invite purge and the hourly group repair.
// Dev runs both every minute.
func setupCron(cfg *config.Config, svc *app.Services) (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(time.UTC))

	purgeSchedule, repairSchedule := "0 3 * * *", "@hourly"
	if cfg.IsDev() {
		purgeSchedule, repairSchedule = "* * * * *", "* * * * *"
	}

	if _, err := c.AddFunc(purgeSchedule, guard("Retention job", func(ctx context.Context) error {
		res, err := retention.RunRetentionJob(ctx, svc.TeamStore, cfg.InviteRetentionDays, time.Now().UTC())
		if err != nil {
			return err
		}
		if res.RejectedDeleted+res.PendingDeleted > 0 {
			svc.Auditor.LogInvitesPurged(ctx, res.RejectedDeleted, res.PendingDeleted, cfg.InviteRetentionDays)
		}
		return nil
	})); err != nil {
		return nil, fmt.Errorf("failed to schedule retention job: %w", err)
	}

	if _, err := c.AddFunc(repairSchedule, guard("Group repair", func(ctx context.Context) error {
		repaired, err := svc.Teams.RepairGroups(ctx)
		if err != nil {
			return err
		}
		if repaired > 0 {
			svc.Auditor.LogGroupsRepaired(ctx, repaired)
		}
		return nil
	})); err != nil {
		return nil, fmt.Errorf("failed to schedule group repair: %w", err)
	}

	return c, nil
}

// guard runs job with a deadline and keeps a panic from killing the scheduler.
func guard(name string, job func(ctx context.Context) error) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("job", name).Msg("Cron job panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := job(ctx); err != nil {
			log.Error().Err(err).Str("job", name).Msg("Cron job failed")
		}
	}
}
