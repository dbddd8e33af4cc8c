package handlers

import (
	"carpool/internal/middleware"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ModerationHandler struct {
	moderationService services.ModerationService
}

func NewModerationHandler(moderationService services.ModerationService) *ModerationHandler {
	return &ModerationHandler{
		moderationService: moderationService,
	}
}

func (h *ModerationHandler) HideMessage(c *gin.Context) {
	messageID, ok := objectIDParam(c, "message_id", "message")
	if !ok {
		return
	}

	message, err := h.moderationService.HideMessage(c.Request.Context(), middleware.GetPrincipal(c), messageID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Message hidden", message)
}

func (h *ModerationHandler) UnhideMessage(c *gin.Context) {
	messageID, ok := objectIDParam(c, "message_id", "message")
	if !ok {
		return
	}

	message, err := h.moderationService.UnhideMessage(c.Request.Context(), middleware.GetPrincipal(c), messageID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Message restored", message)
}

// ReportUser records a report against a user, optionally tied to a session
func (h *ModerationHandler) ReportUser(c *gin.Context) {
	targetID, ok := objectIDParam(c, "user_id", "user")
	if !ok {
		return
	}

	var request validators.ReportRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateReport(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	var sessionID *primitive.ObjectID
	if request.SessionID != "" {
		id, _ := primitive.ObjectIDFromHex(request.SessionID)
		sessionID = &id
	}

	action, err := h.moderationService.ReportUser(c.Request.Context(), middleware.GetPrincipal(c), targetID, sessionID, request.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Report recorded", action)
}

// ListSessions is the moderation centre listing of every chat session
func (h *ModerationHandler) ListSessions(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	sessions, total, err := h.moderationService.ListSessions(c.Request.Context(), middleware.GetPrincipal(c), params)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}
	utils.SuccessResponseWithMeta(c, "Chat sessions retrieved successfully", map[string]interface{}{"sessions": sessions}, meta)
}

func (h *ModerationHandler) ListReports(c *gin.Context) {
	sessionID, ok := objectIDParam(c, "session_id", "session")
	if !ok {
		return
	}

	reports, err := h.moderationService.ListReports(c.Request.Context(), middleware.GetPrincipal(c), sessionID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Reports retrieved successfully", map[string]interface{}{"reports": reports})
}

func (h *ModerationHandler) ListUserActions(c *gin.Context) {
	userID, ok := objectIDParam(c, "user_id", "user")
	if !ok {
		return
	}

	actions, err := h.moderationService.ListUserActions(c.Request.Context(), middleware.GetPrincipal(c), userID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Moderation actions retrieved successfully", map[string]interface{}{"actions": actions})
}
