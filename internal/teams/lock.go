package teams

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// LockResult is the outcome of a lock vote. AlreadyLocked is set when the
// vote arrived after the team was finalized.
type LockResult struct {
	Group         GroupHandle   `json:"group"`
	TeamLocked    bool          `json:"team_locked"`
	AlreadyLocked bool          `json:"already_locked"`
	Locked        int           `json:"locked"`
	Total         int           `json:"total_members"`
	FinalTeamID   uuid.NullUUID `json:"final_team_id"`
	Message       string        `json:"message"`
}

// RequestLock records the user's vote to lock their group. The vote that
// completes the member snapshot finalizes the group into a Team.
func (s *Service) RequestLock(ctx context.Context, userID uuid.UUID) (*LockResult, error) {
	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		return groupKeysFor(ctx, tx, []string{userKey(userID)}, userID)
	}

	var result LockResult
	err := s.guarded(ctx, keys, func(tx Tx, out *outbox) error {
		team, err := tx.FindTeamByMember(ctx, userID)
		if err != nil {
			return err
		}
		if team != nil {
			result = LockResult{
				Group:         LockedTeam(team.ID),
				TeamLocked:    true,
				AlreadyLocked: true,
				Locked:        len(team.Members),
				Total:         len(team.Members),
				FinalTeamID:   uuid.NullUUID{UUID: team.ID, Valid: true},
				Message:       "Group already locked",
			}
			return nil
		}

		groupID, grouped, err := currentGroup(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !grouped {
			return ErrNotInGroup
		}

		members, err := groupMembers(ctx, tx, groupID)
		if err != nil {
			return err
		}
		if len(members) < MinLockSize {
			return ErrGroupTooSmall
		}

		rec, err := tx.GetLockRecord(ctx, groupID)
		if err != nil {
			return err
		}
		if rec == nil || !containsID(rec.Members, userID) {
			rec = &LockRecord{
				GroupID:   groupID,
				Members:   members,
				LockedBy:  []uuid.UUID{},
				CreatedAt: s.now(),
			}
		}
		if rec.HasVoted(userID) {
			return ErrAlreadyVoted
		}
		rec.LockedBy = append(rec.LockedBy, userID)

		result = LockResult{
			Group:   FormingGroup(groupID),
			Locked:  len(rec.LockedBy),
			Total:   len(rec.Members),
			Message: "Lock request recorded",
		}

		if !rec.Complete() {
			return tx.SaveLockRecord(ctx, rec)
		}

		team, err = s.finalize(ctx, tx, rec, out)
		if err != nil {
			return err
		}
		result.Group = LockedTeam(team.ID)
		result.TeamLocked = true
		result.FinalTeamID = rec.FinalTeamID
		result.Message = "Group locked successfully!"
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("group", result.Group.String()).
		Int("locked", result.Locked).
		Int("total", result.Total).
		Bool("team_locked", result.TeamLocked).
		Msg("Lock vote recorded")
	return &result, nil
}

// finalize locks rec, projects it into a Team and stamps every member
// profile. It is idempotent for a record that already carries a team id.
func (s *Service) finalize(ctx context.Context, tx Tx, rec *LockRecord, out *outbox) (*Team, error) {
	if rec.FinalTeamID.Valid {
		existing, err := tx.GetTeam(ctx, rec.FinalTeamID.UUID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if !rec.IsLocked {
				rec.IsLocked = true
				rec.LockedAt = &existing.LockedAt
				if err := tx.SaveLockRecord(ctx, rec); err != nil {
					return nil, err
				}
			}
			return existing, nil
		}
	} else {
		rec.FinalTeamID = uuid.NullUUID{UUID: s.newID(), Valid: true}
	}

	now := s.now()
	rec.IsLocked = true
	rec.LockedAt = &now
	if err := tx.SaveLockRecord(ctx, rec); err != nil {
		return nil, err
	}

	team := &Team{
		ID:       rec.FinalTeamID.UUID,
		GroupID:  rec.GroupID,
		Members:  cloneIDs(rec.Members),
		LockedAt: now,
	}
	if err := tx.InsertTeam(ctx, team); err != nil {
		return nil, err
	}
	for _, m := range team.Members {
		if err := tx.AssignTeam(ctx, m, team.ID); err != nil {
			return nil, fmt.Errorf("failed to project team onto member %s: %w", m, err)
		}
	}

	for _, m := range team.Members {
		member := m
		out.add(func() { s.notifier.GroupLocked(member, team.GroupID, team.ID) })
	}

	log.Info().
		Str("group_id", team.GroupID.String()).
		Str("final_team_id", team.ID.String()).
		Int("members", len(team.Members)).
		Msg("Group locked into team")
	return team, nil
}

// LockStatus reports the lock tally of the user's group.
type LockStatus struct {
	Message       string        `json:"message"`
	TotalMembers  int           `json:"total_members"`
	Locked        int           `json:"locked"`
	Remaining     int           `json:"remaining"`
	IsFullyLocked bool          `json:"is_fully_locked"`
	FinalTeamID   uuid.NullUUID `json:"final_team_id"`
}

// GetLockStatus reports the tally of the user's lock record. A record whose
// votes are complete but which was never finalized is finalized here.
func (s *Service) GetLockStatus(ctx context.Context, userID uuid.UUID) (*LockStatus, error) {
	keys := func(ctx context.Context, tx Tx) ([]string, error) {
		return groupKeysFor(ctx, tx, []string{userKey(userID)}, userID)
	}

	var status LockStatus
	err := s.guarded(ctx, keys, func(tx Tx, out *outbox) error {
		rec, err := tx.FindLockRecordByMember(ctx, userID)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNoLockRecord
		}
		if !rec.HasVoted(userID) {
			return ErrNotVoted
		}

		if rec.Complete() && (!rec.IsLocked || !rec.FinalTeamID.Valid) {
			if _, err := s.finalize(ctx, tx, rec, out); err != nil {
				return err
			}
		}

		total := len(rec.Members)
		locked := len(rec.LockedBy)
		remaining := total - locked
		status = LockStatus{
			TotalMembers:  total,
			Locked:        locked,
			Remaining:     remaining,
			IsFullyLocked: rec.IsLocked,
			FinalTeamID:   rec.FinalTeamID,
			Message:       lockStatusMessage(locked, remaining),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func lockStatusMessage(locked, remaining int) string {
	switch remaining {
	case 0:
		return "All members have locked their group."
	case 1:
		return fmt.Sprintf("%d members have locked their group and 1 remaining.", locked)
	default:
		return fmt.Sprintf("%d members have locked their group and %d remaining.", locked, remaining)
	}
}
