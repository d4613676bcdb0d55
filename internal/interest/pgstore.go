package interest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aliuyar1234/projectportal/internal/scoring"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) GetProject(ctx context.Context, projectID uuid.UUID) (*Project, error) {
	var p Project
	err := s.pool.QueryRow(ctx, `
		SELECT id, advisor_id, title, skills_required, created_at
		FROM advisor_projects
		WHERE id = $1
	`, projectID).Scan(&p.ID, &p.AdvisorID, &p.Title, &p.SkillsRequired, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (s *PGStore) HasInterest(ctx context.Context, projectID, teamID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM interests WHERE project_id = $1 AND team_id = $2
		)
	`, projectID, teamID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check interest: %w", err)
	}
	return exists, nil
}

func (s *PGStore) InsertInterest(ctx context.Context, rec *Record) error {
	members, err := json.Marshal(rec.Members)
	if err != nil {
		return fmt.Errorf("failed to encode interest members: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO interests (
			id, project_id, advisor_id, team_id, group_id,
			team_score, matched_skills, members, status, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.ProjectID, rec.AdvisorID, rec.TeamID, rec.GroupID,
		rec.TeamScore, rec.MatchedSkills, members, rec.Status, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyInterested
		}
		return fmt.Errorf("failed to insert interest: %w", err)
	}
	return nil
}

const recordColumns = `id, project_id, advisor_id, team_id, group_id, team_score, matched_skills, members, status, created_at`

func (s *PGStore) ListByAdvisor(ctx context.Context, advisorID uuid.UUID) ([]Record, error) {
	return s.list(ctx, `
		SELECT `+recordColumns+`
		FROM interests
		WHERE advisor_id = $1
		ORDER BY created_at DESC
	`, advisorID)
}

func (s *PGStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]Record, error) {
	return s.list(ctx, `
		SELECT `+recordColumns+`
		FROM interests
		WHERE project_id = $1
		ORDER BY team_score DESC, created_at ASC
	`, projectID)
}

func (s *PGStore) ListByTeam(ctx context.Context, teamID uuid.UUID) ([]Record, error) {
	return s.list(ctx, `
		SELECT `+recordColumns+`
		FROM interests
		WHERE team_id = $1
		ORDER BY created_at DESC
	`, teamID)
}

func (s *PGStore) list(ctx context.Context, query string, arg uuid.UUID) ([]Record, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query interests: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			r       Record
			members []byte
		)
		if err := rows.Scan(
			&r.ID, &r.ProjectID, &r.AdvisorID, &r.TeamID, &r.GroupID,
			&r.TeamScore, &r.MatchedSkills, &members, &r.Status, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan interest: %w", err)
		}
		r.Members = []scoring.MemberMatch{}
		if len(members) > 0 {
			if err := json.Unmarshal(members, &r.Members); err != nil {
				return nil, fmt.Errorf("failed to decode interest members: %w", err)
			}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interests: %w", err)
	}
	return out, nil
}
