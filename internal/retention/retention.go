package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Purger deletes rejected and still-pending invites created before a cutoff.
// Accepted invites are group edges and are never purged.
type Purger interface {
	PurgeInvites(ctx context.Context, before time.Time) (rejected, pending int64, err error)
}

// Result summarizes one retention run.
type Result struct {
	RejectedDeleted int64
	PendingDeleted  int64
	Cutoff          time.Time
}

// RunRetentionJob purges invites older than retentionDays and logs the
// results. It is idempotent and is the entry point called by the cron
// scheduler and the admin CLI.
func RunRetentionJob(ctx context.Context, purger Purger, retentionDays int, now time.Time) (*Result, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive (got: %d)", retentionDays)
	}

	cutoff := now.AddDate(0, 0, -retentionDays)
	log.Info().
		Int("invite_retention_days", retentionDays).
		Time("cutoff", cutoff).
		Msg("Starting retention job")

	startTime := time.Now()

	rejected, pending, err := purger.PurgeInvites(ctx, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge old invites")
		return nil, fmt.Errorf("invite cleanup failed: %w", err)
	}

	log.Info().
		Int64("rejected_invites_deleted", rejected).
		Int64("pending_invites_deleted", pending).
		Dur("duration", time.Since(startTime)).
		Msg("Retention job completed")

	return &Result{RejectedDeleted: rejected, PendingDeleted: pending, Cutoff: cutoff}, nil
}
