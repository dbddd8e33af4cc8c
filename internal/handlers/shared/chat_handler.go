package handlers

import (
	"context"
	"net/http"

	"carpool/internal/middleware"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/internal/validators"
	"carpool/pkg/logger"
	"carpool/pkg/websocket"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService       services.ChatService
	moderationService services.ModerationService
	guard             services.AccessGuard
	wsHandler         *websocket.Handler
	logger            *logger.Logger
}

func NewChatHandler(
	chatService services.ChatService,
	moderationService services.ModerationService,
	guard services.AccessGuard,
	wsHandler *websocket.Handler,
	log *logger.Logger,
) *ChatHandler {
	return &ChatHandler{
		chatService:       chatService,
		moderationService: moderationService,
		guard:             guard,
		wsHandler:         wsHandler,
		logger:            log,
	}
}

// OpenSession starts (or returns) the caller's chat with a ride's driver
func (h *ChatHandler) OpenSession(c *gin.Context) {
	rideID, ok := objectIDParam(c, "ride_id", "ride")
	if !ok {
		return
	}

	session, err := h.chatService.OpenSession(c.Request.Context(), middleware.GetPrincipal(c), rideID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Chat session ready", session)
}

func (h *ChatHandler) Inbox(c *gin.Context) {
	inbox, err := h.chatService.ListInbox(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Chat sessions retrieved successfully", inbox)
}

func (h *ChatHandler) GetSession(c *gin.Context) {
	sessionID, ok := objectIDParam(c, "session_id", "session")
	if !ok {
		return
	}

	view, err := h.chatService.GetSessionView(c.Request.Context(), middleware.GetPrincipal(c), sessionID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Chat session retrieved successfully", view)
}

// ReportSession lets a participant flag a conversation for moderators
func (h *ChatHandler) ReportSession(c *gin.Context) {
	sessionID, ok := objectIDParam(c, "session_id", "session")
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

	report, err := h.moderationService.ReportSession(c.Request.Context(), middleware.GetPrincipal(c), sessionID, request.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Report submitted successfully", report)
}

// ServeWebSocket is the live channel of one chat session. Any refusal is a
// bare 403 before the upgrade, whatever the reason.
func (h *ChatHandler) ServeWebSocket(c *gin.Context) {
	principal := middleware.GetPrincipal(c)

	sessionID, err := primitiveID(c.Param("session_id"))
	if err != nil {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	session, err := h.chatService.Authorize(c.Request.Context(), principal, sessionID)
	if err != nil {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}

	client, err := h.wsHandler.Upgrade(c, principal.UserID, h.guard.CanModerate(principal))
	if err != nil {
		h.logger.WithError(err).WithSessionID(sessionID).Warn("Chat upgrade failed")
		return
	}

	// The connection outlives the request.
	ctx := context.WithoutCancel(c.Request.Context())

	client.Start(
		func(data []byte) {
			h.chatService.HandleInbound(ctx, principal, session.ID, data)
		},
		func() {
			h.chatService.Leave(client, session)
		},
	)

	if err := h.chatService.Join(ctx, principal, session, client); err != nil {
		h.logger.WithError(err).WithSessionID(sessionID).Warn("Chat join failed")
		client.Close()
		return
	}

	select {
	case <-client.Done():
		h.chatService.Leave(client, session)
	default:
	}
}
