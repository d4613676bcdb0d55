package interest

import (
	"context"
	"errors"
	"time"

	"github.com/aliuyar1234/projectportal/internal/scoring"
	"github.com/aliuyar1234/projectportal/internal/teams"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// TeamResolver finds the finalized team a user belongs to.
type TeamResolver interface {
	TeamOf(ctx context.Context, userID uuid.UUID) (*teams.Team, []teams.Profile, error)
}

type Service struct {
	store Store
	teams TeamResolver
	now   func() time.Time
	newID func() uuid.UUID
}

func NewService(store Store, resolver TeamResolver) *Service {
	return &Service{
		store: store,
		teams: resolver,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.New,
	}
}

// MarkInterested records that the caller's team is interested in projectID,
// snapshotting the team's skill match at this moment.
func (s *Service) MarkInterested(ctx context.Context, userID, projectID uuid.UUID) (*Record, error) {
	team, profiles, err := s.teams.TeamOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	exists, err := s.store.HasInterest(ctx, projectID, team.ID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyInterested
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, ErrProjectNotFound
	}

	members := make([]scoring.MemberSkills, 0, len(profiles))
	for _, p := range profiles {
		members = append(members, scoring.MemberSkills{UserID: p.UserID, Skills: p.Skills})
	}
	result := scoring.Score(members, project.SkillsRequired)

	rec := &Record{
		ID:            s.newID(),
		ProjectID:     project.ID,
		AdvisorID:     project.AdvisorID,
		TeamID:        team.ID,
		GroupID:       team.GroupID,
		TeamScore:     result.TeamScore,
		MatchedSkills: result.MatchedSkills,
		Members:       result.Members,
		Status:        StatusPending,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertInterest(ctx, rec); err != nil {
		return nil, err
	}

	log.Info().
		Str("project_id", projectID.String()).
		Str("team_id", team.ID.String()).
		Float64("team_score", rec.TeamScore).
		Msg("Team interest recorded")
	return rec, nil
}

func (s *Service) ListForAdvisor(ctx context.Context, advisorID uuid.UUID) ([]Record, error) {
	return s.store.ListByAdvisor(ctx, advisorID)
}

func (s *Service) ListForProject(ctx context.Context, projectID uuid.UUID) ([]Record, error) {
	return s.store.ListByProject(ctx, projectID)
}

// ListForTeam returns the interests of the caller's team.
func (s *Service) ListForTeam(ctx context.Context, userID uuid.UUID) ([]Record, error) {
	team, _, err := s.teams.TeamOf(ctx, userID)
	if errors.Is(err, teams.ErrNotInTeam) {
		return nil, ErrNotInTeam
	}
	if err != nil {
		return nil, err
	}
	return s.store.ListByTeam(ctx, team.ID)
}
