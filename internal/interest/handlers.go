package interest

import (
	"net/http"

	"github.com/aliuyar1234/projectportal/internal/apperrors"
	"github.com/aliuyar1234/projectportal/internal/audit"
	"github.com/aliuyar1234/projectportal/internal/auth"
	"github.com/aliuyar1234/projectportal/internal/validation"
	"github.com/go-chi/chi/v5"
)

// HandleMarkInterested handles POST /advisor-projects/{project_id}/interested
func HandleMarkInterested(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		projectID, err := validation.ParseID("project_id", chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid project_id")
			return
		}

		rec, err := svc.MarkInterested(ctx, userID, projectID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to record interest")
			return
		}

		auditor.LogInterestRecorded(ctx, rec.GroupID, userID, rec.ProjectID, rec.TeamID, rec.TeamScore)

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"message":    "Interest recorded",
			"team_score": rec.TeamScore,
		})
	}
}

// HandleAdvisorInterests handles GET /advisor-projects/advisor/interested-teams
func HandleAdvisorInterests(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.ListForAdvisor(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list interested teams")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"interests": records})
	}
}

// HandleProjectInterests handles GET /advisor-projects/{project_id}/interested-teams
func HandleProjectInterests(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID, err := validation.ParseID("project_id", chi.URLParam(r, "project_id"))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid project_id")
			return
		}

		records, err := svc.ListForProject(r.Context(), projectID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list interested teams")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"interests": records})
	}
}

// HandleMyTeamInterests handles GET /advisor-projects/team/my-interests
func HandleMyTeamInterests(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.ListForTeam(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list team interests")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"interests": records})
	}
}
