package teams

import (
	"net/http"
	"strconv"

	"github.com/aliuyar1234/projectportal/internal/apperrors"
	"github.com/aliuyar1234/projectportal/internal/audit"
	"github.com/aliuyar1234/projectportal/internal/auth"
	"github.com/aliuyar1234/projectportal/internal/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type SendInviteRequest struct {
	ReceiverID string `json:"receiver_id"`
}

type RespondInviteRequest struct {
	InviteID string `json:"invite_id"`
	Action   string `json:"action"`
}

// HandleSendInvite handles POST /invite/
func HandleSendInvite(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req SendInviteRequest
		if err := validation.DecodeJSON(w, r, &req); err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid request body")
			return
		}
		receiverID, err := validation.ParseID("receiver_id", req.ReceiverID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid receiver_id")
			return
		}

		invite, err := svc.SendInvite(ctx, userID, receiverID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to send invite")
			return
		}

		auditor.LogInviteSent(ctx, invite.GroupID, userID, invite.ID, receiverID)

		apperrors.WriteSuccess(w, r, http.StatusCreated, map[string]any{
			"message":   "Invite sent",
			"invite_id": invite.ID,
			"group_id":  invite.GroupID,
		})
	}
}

// HandleRespondInvite handles PUT /invite/action/
func HandleRespondInvite(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		var req RespondInviteRequest
		if err := validation.DecodeJSON(w, r, &req); err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid request body")
			return
		}
		inviteID, err := validation.ParseID("invite_id", req.InviteID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid invite_id")
			return
		}
		action, err := ParseAction(req.Action)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid action")
			return
		}

		result, err := svc.RespondToInvite(ctx, inviteID, userID, action)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to respond to invite")
			return
		}

		var movedFrom *uuid.UUID
		if result.MovedFrom.Valid {
			movedFrom = &result.MovedFrom.UUID
		}
		auditor.LogInviteResponded(ctx, result.Invite.GroupID, userID, inviteID, string(action), movedFrom)
		if result.InviterMovedFrom.Valid {
			target := result.Invite.GroupID
			auditor.LogMemberLeft(ctx, result.InviterMovedFrom.UUID, result.Invite.SenderID, &target, 0)
		}

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message":  "Invite " + string(action),
			"group_id": result.Invite.GroupID,
		})
	}
}

// HandleDeleteInvite handles DELETE /invite/{invite_id}
func HandleDeleteInvite(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		inviteID, err := validation.ParseID("invite_id", chi.URLParam(r, "invite_id"))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Invalid invite_id")
			return
		}

		invite, err := svc.DeleteInvite(ctx, inviteID, userID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to delete invite")
			return
		}

		auditor.LogInviteDeleted(ctx, invite.GroupID, userID, invite.ID)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message": "Invite deleted successfully.",
		})
	}
}

// HandleListReceivedInvites handles GET /invites/me
func HandleListReceivedInvites(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invites, err := svc.ListReceivedInvites(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list invites")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"invites": invites})
	}
}

// HandleListSentInvites handles GET /sent-invites/me
func HandleListSentInvites(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invites, err := svc.ListSentInvites(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list sent invites")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"invites": invites})
	}
}

// HandleLeaveGroup handles POST /group/leave
func HandleLeaveGroup(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		result, err := svc.LeaveGroup(ctx, userID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to leave group")
			return
		}

		var newGroupID *uuid.UUID
		if result.NewGroupID.Valid {
			newGroupID = &result.NewGroupID.UUID
		}
		auditor.LogMemberLeft(ctx, result.GroupID, userID, newGroupID, result.InvitesRemoved)

		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"message":         "Left temporary group",
			"invites_removed": result.InvitesRemoved,
		})
	}
}

// HandleRequestLock handles POST /group/lock
func HandleRequestLock(svc *Service, auditor *audit.Writer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		userID := auth.GetUserID(ctx)

		result, err := svc.RequestLock(ctx, userID)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to lock group")
			return
		}

		if result.Group.Phase == PhaseForming {
			auditor.LogLockVote(ctx, result.Group.ID, userID, result.Locked, result.Total)
		} else if !result.AlreadyLocked {
			auditor.LogTeamLocked(ctx, result.Group.ID, userID, result.FinalTeamID.UUID)
		}

		resp := map[string]any{
			"message":     result.Message,
			"team_locked": result.TeamLocked,
			"locked":      result.Locked,
			"total":       result.Total,
		}
		if result.FinalTeamID.Valid {
			resp["final_team_id"] = result.FinalTeamID.UUID
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, resp)
	}
}

// HandleLockStatus handles GET /group/lock-status
func HandleLockStatus(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := svc.GetLockStatus(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to get lock status")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, status)
	}
}

// HandleGroupMembers handles GET /group/members
func HandleGroupMembers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.GroupMembers(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to get group members")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, view)
	}
}

// HandleGroupActivity handles GET /group/activity
func HandleGroupActivity(svc *Service, reader *audit.Reader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				apperrors.WriteBadRequest(w, r, "Invalid limit")
				return
			}
			limit = n
		}

		view, err := svc.GroupMembers(ctx, auth.GetUserID(ctx))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to resolve group")
			return
		}
		if !view.GroupID.Valid {
			apperrors.WriteServiceError(w, r, ErrNotInGroup, "Failed to resolve group")
			return
		}

		events, err := reader.ListByGroup(ctx, view.GroupID.UUID, limit)
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list group activity")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"group_id": view.GroupID.UUID,
			"events":   events,
		})
	}
}

// HandleListUsers handles GET /users
func HandleListUsers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := svc.ListUsers(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list users")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{"users": users})
	}
}

// HandleMyTeamMembers handles GET /my-team/members
func HandleMyTeamMembers(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		teamID, members, err := svc.MyTeamMembers(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to list team members")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, map[string]any{
			"team_id": teamID,
			"members": members,
		})
	}
}

// HandleMyStages handles GET /my-stages
func HandleMyStages(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stages, err := svc.MyStages(r.Context(), auth.GetUserID(r.Context()))
		if err != nil {
			apperrors.WriteServiceError(w, r, err, "Failed to get stages")
			return
		}
		apperrors.WriteSuccess(w, r, http.StatusOK, stages)
	}
}
