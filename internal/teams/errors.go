package teams

import "github.com/aliuyar1234/projectportal/internal/apperrors"

var (
	ErrSelfInvite         = apperrors.Validation("Cannot invite yourself")
	ErrSenderLocked       = apperrors.Conflict("You are in a locked team. Cannot send invites.")
	ErrReceiverLocked     = apperrors.Conflict("Receiver is already in a locked team")
	ErrInviterLocked      = apperrors.Conflict("Inviter is already in a locked team")
	ErrDuplicateInvite    = apperrors.Conflict("Invite already sent (pending or accepted)")
	ErrGroupFull          = apperrors.Conflict("Your group already has 4 members")
	ErrPendingCapacity    = apperrors.Conflict("Group is full (4 members)")
	ErrInviteNotFound     = apperrors.NotFound("Invite not found")
	ErrNotReceiver        = apperrors.Authorization("Only receiver can respond to this invite")
	ErrNotSender          = apperrors.Authorization("Can only delete your own invites")
	ErrInvalidAction      = apperrors.Validation("Action must be 'accepted' or 'rejected'")
	ErrRejectAccepted     = apperrors.Validation("Cannot reject an already accepted invite. Use /group/leave to leave the group.")
	ErrAcceptRejected     = apperrors.Validation("Cannot accept a rejected invite.")
	ErrAlreadyInStatus    = apperrors.Validation("Invite is already in that status.")
	ErrResponderLocked    = apperrors.Conflict("You are already in a locked team")
	ErrGroupWouldExceed   = apperrors.Conflict("Group would exceed 4 members")
	ErrDeleteAccepted     = apperrors.Conflict("Cannot delete an accepted invite. Use /group/leave to leave the group.")
	ErrLeaveLocked        = apperrors.Conflict("Cannot leave a locked team")
	ErrNotInGroup         = apperrors.NotFound("You are not in any temporary group")
	ErrGroupTooSmall      = apperrors.Conflict("Group must have at least 3 members to lock")
	ErrAlreadyVoted       = apperrors.Conflict("You have already requested to lock this group")
	ErrNoLockRecord       = apperrors.NotFound("You are not in any group")
	ErrNotVoted           = apperrors.Authorization("You have not locked your group yet")
	ErrNotInTeam          = apperrors.Validation("User is not part of a team")
	ErrTeamNotFound       = apperrors.NotFound("Team not found")
	ErrStage1Incomplete   = apperrors.Authorization("Stage 1 not completed")
	ErrProfileNotFound    = apperrors.NotFound("Profile not found")
	ErrConcurrentMutation = apperrors.Conflict("Group changed while processing the request, please retry")
)
