package teams

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type MemberView struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
}

// GroupView is the caller's current group.
type GroupView struct {
	Group        *GroupHandle  `json:"group,omitempty"`
	GroupID      uuid.NullUUID `json:"group_id"`
	IsLocked     bool          `json:"is_locked"`
	Members      []MemberView  `json:"members"`
	TotalMembers int           `json:"total_members"`
	Message      string        `json:"message,omitempty"`
}

// GroupMembers resolves the caller's group. A caller without a group gets an
// empty view rather than an error.
func (s *Service) GroupMembers(ctx context.Context, userID uuid.UUID) (*GroupView, error) {
	view := &GroupView{Members: []MemberView{}}

	err := s.store.InTx(ctx, func(tx Tx) error {
		groupID, grouped, err := currentGroup(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !grouped {
			view.Message = "You are not in any group"
			return nil
		}

		members, err := groupMembers(ctx, tx, groupID)
		if err != nil {
			return err
		}
		profiles, err := profilesByID(ctx, tx, members)
		if err != nil {
			return err
		}
		rec, err := tx.GetLockRecord(ctx, groupID)
		if err != nil {
			return err
		}

		handle := FormingGroup(groupID)
		if rec != nil && rec.IsLocked && rec.FinalTeamID.Valid {
			handle = LockedTeam(rec.FinalTeamID.UUID)
			view.IsLocked = true
		}
		view.Group = &handle
		view.GroupID = uuid.NullUUID{UUID: groupID, Valid: true}
		for _, m := range members {
			p := profiles[m]
			view.Members = append(view.Members, MemberView{UserID: m, Name: p.DisplayName()})
		}
		view.TotalMembers = len(view.Members)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

const (
	UserStatusInTeam = "in_team"
	UserStatusFree   = "free"
)

type UserView struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Skills []string  `json:"skills"`
	Status string    `json:"status"`
}

// ListUsers returns every other user with whether they already belong to a
// locked team.
func (s *Service) ListUsers(ctx context.Context, callerID uuid.UUID) ([]UserView, error) {
	users := make([]UserView, 0)
	err := s.store.InTx(ctx, func(tx Tx) error {
		profiles, err := tx.ListProfiles(ctx)
		if err != nil {
			return err
		}
		for _, p := range profiles {
			if p.UserID == callerID {
				continue
			}
			status := UserStatusFree
			if p.TeamID.Valid {
				status = UserStatusInTeam
			}
			skills := p.Skills
			if skills == nil {
				skills = []string{}
			}
			users = append(users, UserView{UserID: p.UserID, Name: p.DisplayName(), Skills: skills, Status: status})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

type ReceivedInviteView struct {
	InviteID   uuid.UUID    `json:"invite_id"`
	SenderID   uuid.UUID    `json:"sender_id"`
	SenderName string       `json:"sender_name"`
	GroupID    uuid.UUID    `json:"group_id"`
	Status     InviteStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// ListReceivedInvites returns the caller's pending invites.
func (s *Service) ListReceivedInvites(ctx context.Context, userID uuid.UUID) ([]ReceivedInviteView, error) {
	views := make([]ReceivedInviteView, 0)
	err := s.store.InTx(ctx, func(tx Tx) error {
		invites, err := tx.ListPendingReceived(ctx, userID)
		if err != nil {
			return err
		}
		senders := make([]uuid.UUID, 0, len(invites))
		for _, inv := range invites {
			senders = append(senders, inv.SenderID)
		}
		profiles, err := profilesByID(ctx, tx, senders)
		if err != nil {
			return err
		}
		for _, inv := range invites {
			views = append(views, ReceivedInviteView{
				InviteID:   inv.ID,
				SenderID:   inv.SenderID,
				SenderName: profiles[inv.SenderID].DisplayName(),
				GroupID:    inv.GroupID,
				Status:     inv.Status,
				CreatedAt:  inv.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

type SentInviteView struct {
	InviteID     uuid.UUID    `json:"invite_id"`
	ReceiverID   uuid.UUID    `json:"receiver_id"`
	ReceiverName string       `json:"receiver_name"`
	GroupID      uuid.UUID    `json:"group_id"`
	Status       InviteStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// ListSentInvites returns every invite the caller sent, in any status.
func (s *Service) ListSentInvites(ctx context.Context, userID uuid.UUID) ([]SentInviteView, error) {
	views := make([]SentInviteView, 0)
	err := s.store.InTx(ctx, func(tx Tx) error {
		invites, err := tx.ListSent(ctx, userID)
		if err != nil {
			return err
		}
		receivers := make([]uuid.UUID, 0, len(invites))
		for _, inv := range invites {
			receivers = append(receivers, inv.ReceiverID)
		}
		profiles, err := profilesByID(ctx, tx, receivers)
		if err != nil {
			return err
		}
		for _, inv := range invites {
			views = append(views, SentInviteView{
				InviteID:     inv.ID,
				ReceiverID:   inv.ReceiverID,
				ReceiverName: profiles[inv.ReceiverID].DisplayName(),
				GroupID:      inv.GroupID,
				Status:       inv.Status,
				CreatedAt:    inv.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

type TeammateView struct {
	UserID uuid.UUID `json:"user_id"`
	Name   string    `json:"name"`
	Skills []string  `json:"skills"`
}

// MyTeamMembers lists the caller's teammates in their finalized team.
func (s *Service) MyTeamMembers(ctx context.Context, userID uuid.UUID) (uuid.UUID, []TeammateView, error) {
	var teamID uuid.UUID
	mates := make([]TeammateView, 0)

	err := s.store.InTx(ctx, func(tx Tx) error {
		profile, err := tx.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile == nil || !profile.Stage1Completed || !profile.TeamID.Valid {
			return ErrStage1Incomplete
		}

		team, err := tx.GetTeam(ctx, profile.TeamID.UUID)
		if err != nil {
			return err
		}
		if team == nil {
			return ErrTeamNotFound
		}
		teamID = team.ID

		others := without(team.Members, userID)
		profiles, err := profilesByID(ctx, tx, others)
		if err != nil {
			return err
		}
		for _, m := range others {
			p := profiles[m]
			skills := []string{}
			if p != nil && p.Skills != nil {
				skills = p.Skills
			}
			mates = append(mates, TeammateView{UserID: m, Name: p.DisplayName(), Skills: skills})
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, nil, err
	}
	return teamID, mates, nil
}

type Stages struct {
	Stage1Completed bool          `json:"stage1_completed"`
	TeamID          uuid.NullUUID `json:"team_id"`
}

// MyStages returns the caller's stage flags. Users without a profile have
// completed nothing yet.
func (s *Service) MyStages(ctx context.Context, userID uuid.UUID) (*Stages, error) {
	stages := &Stages{}
	err := s.store.InTx(ctx, func(tx Tx) error {
		profile, err := tx.GetProfile(ctx, userID)
		if err != nil || profile == nil {
			return err
		}
		stages.Stage1Completed = profile.Stage1Completed
		stages.TeamID = profile.TeamID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stages, nil
}

// TeamOf returns the caller's finalized team and the profiles of its members.
func (s *Service) TeamOf(ctx context.Context, userID uuid.UUID) (*Team, []Profile, error) {
	var (
		team     *Team
		profiles []Profile
	)
	err := s.store.InTx(ctx, func(tx Tx) error {
		profile, err := tx.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if profile == nil || !profile.TeamID.Valid {
			return ErrNotInTeam
		}

		team, err = tx.GetTeam(ctx, profile.TeamID.UUID)
		if err != nil {
			return err
		}
		if team == nil {
			return ErrTeamNotFound
		}

		byID, err := profilesByID(ctx, tx, team.Members)
		if err != nil {
			return err
		}
		profiles = make([]Profile, 0, len(team.Members))
		for _, m := range team.Members {
			if p := byID[m]; p != nil {
				profiles = append(profiles, *p)
			} else {
				profiles = append(profiles, Profile{UserID: m})
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return team, profiles, nil
}

// RepairGroups reconciles every forming group with its accepted invites. A
// disconnected group is reconnected as a star, and a materialized member set
// that drifted from the ledger is rewritten to match it. It returns the number
// of groups touched.
func (s *Service) RepairGroups(ctx context.Context) (int, error) {
	var groupIDs []uuid.UUID
	err := s.store.InTx(ctx, func(tx Tx) error {
		ids, err := tx.ListFormingGroupIDs(ctx)
		groupIDs = ids
		return err
	})
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, groupID := range groupIDs {
		gid := groupID
		keys := func(ctx context.Context, tx Tx) ([]string, error) {
			return []string{groupKey(gid)}, nil
		}

		rebuilt := false
		err := s.guarded(ctx, keys, func(tx Tx, out *outbox) error {
			edges, err := tx.ListAcceptedByGroup(ctx, gid)
			if err != nil {
				return err
			}
			members := ResolveMembers(edges)
			materialized, err := tx.ListGroupMembers(ctx, gid)
			if err != nil {
				return err
			}

			connected := IsConnected(members, edges)
			synced := sameMembers(members, materialized)
			if connected && synced {
				return nil
			}
			rebuilt = true

			if !synced {
				for _, m := range materialized {
					if !containsID(members, m) {
						if err := tx.RemoveMember(ctx, m); err != nil {
							return err
						}
					}
				}
				for _, m := range members {
					if err := tx.AddMember(ctx, gid, m); err != nil {
						return err
					}
				}
				if err := tx.DeleteLockRecord(ctx, gid); err != nil {
					return err
				}
			}
			if connected {
				return nil
			}
			return s.rebuildStar(ctx, tx, members, gid)
		})
		if err != nil {
			return repaired, err
		}
		if rebuilt {
			repaired++
			log.Info().Str("group_id", gid.String()).Msg("Repaired group")
		}
	}
	return repaired, nil
}

func sameMembers(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !containsID(b, id) {
			return false
		}
	}
	return true
}

func profilesByID(ctx context.Context, tx Tx, ids []uuid.UUID) (map[uuid.UUID]*Profile, error) {
	profiles, err := tx.ListProfilesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*Profile, len(profiles))
	for i := range profiles {
		byID[profiles[i].UserID] = &profiles[i]
	}
	return byID, nil
}
