package interest

import (
	"context"

	"github.com/google/uuid"
)

// Store persists projects and interest records. Getters return nil, nil when
// the row does not exist.
type Store interface {
	GetProject(ctx context.Context, projectID uuid.UUID) (*Project, error)
	HasInterest(ctx context.Context, projectID, teamID uuid.UUID) (bool, error)
	// InsertInterest returns ErrAlreadyInterested when the team already
	// declared interest in the project.
	InsertInterest(ctx context.Context, rec *Record) error

	// ListByAdvisor returns newest first.
	ListByAdvisor(ctx context.Context, advisorID uuid.UUID) ([]Record, error)
	// ListByProject returns the best score first.
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]Record, error)
	// ListByTeam returns newest first.
	ListByTeam(ctx context.Context, teamID uuid.UUID) ([]Record, error)
}
