package services

import (
	"carpool/internal/models"
)

// AccessGuard decides who may join a chat session and who may moderate.
// Anonymous principals are always denied.
type AccessGuard interface {
	CanJoinSession(principal models.Principal, session *models.ChatSession) bool
	CanModerate(principal models.Principal) bool
}

type accessGuard struct{}

func NewAccessGuard() AccessGuard {
	return accessGuard{}
}

func (accessGuard) CanJoinSession(principal models.Principal, session *models.ChatSession) bool {
	if principal.IsAnonymous() || session == nil {
		return false
	}
	return session.IsParticipant(principal.UserID) || principal.HasPermission(models.PermissionModerateMessages)
}

func (accessGuard) CanModerate(principal models.Principal) bool {
	return principal.HasPermission(models.PermissionModerateMessages)
}
