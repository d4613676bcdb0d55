// Package interest records locked teams' interest in advisor projects,
// scored by how well the team's skills cover the project's requirements.
package interest

import (
	"time"

	"github.com/aliuyar1234/projectportal/internal/apperrors"
	"github.com/aliuyar1234/projectportal/internal/scoring"
	"github.com/google/uuid"
)

const StatusPending = "pending"

var (
	ErrProjectNotFound   = apperrors.NotFound("Project not found")
	ErrAlreadyInterested = apperrors.Conflict("Team already marked interest")
	ErrNotInTeam         = apperrors.Validation("User not in a team")
)

// Project is an advisor-owned project teams can apply to.
type Project struct {
	ID             uuid.UUID `json:"project_id"`
	AdvisorID      uuid.UUID `json:"advisor_id"`
	Title          string    `json:"title"`
	SkillsRequired []string  `json:"skills_required"`
	CreatedAt      time.Time `json:"created_at"`
}

// Record is an immutable snapshot of a team's match against a project at the
// moment the team declared interest.
type Record struct {
	ID            uuid.UUID             `json:"id"`
	ProjectID     uuid.UUID             `json:"project_id"`
	AdvisorID     uuid.UUID             `json:"advisor_id"`
	TeamID        uuid.UUID             `json:"team_id"`
	GroupID       uuid.UUID             `json:"group_id"`
	TeamScore     float64               `json:"team_score"`
	MatchedSkills []string              `json:"matched_skills"`
	Members       []scoring.MemberMatch `json:"members"`
	Status        string                `json:"status"`
	CreatedAt     time.Time             `json:"created_at"`
}
