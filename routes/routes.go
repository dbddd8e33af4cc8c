package routes

import (
	handlers "carpool/internal/handlers/shared"
	"carpool/internal/middleware"
	"carpool/internal/models"

	"github.com/gin-gonic/gin"
)

// Handlers bundles everything the router exposes.
type Handlers struct {
	Ride        *handlers.RideHandler
	Reservation *handlers.ReservationHandler
	Chat        *handlers.ChatHandler
	Moderation  *handlers.ModerationHandler
	Health      *handlers.HealthHandler
}

// SetupRoutes mounts the API, the live chat channel and the health check
func SetupRoutes(r *gin.Engine, h Handlers, jwtSecret string) {
	r.GET("/health", h.Health.Health)

	ws := r.Group("/ws")
	ws.Use(middleware.WebSocketAuth(jwtSecret))
	{
		ws.GET("/chat/:session_id", h.Chat.ServeWebSocket)
	}

	v1 := r.Group("/api/v1")
	v1.Use(middleware.AuthRequired(jwtSecret))
	SetupRideRoutes(v1, h.Ride, h.Reservation, h.Chat)
	SetupReservationRoutes(v1, h.Reservation)
	SetupChatRoutes(v1, h.Chat)
	SetupModerationRoutes(v1, h.Moderation)
}

// SetupRideRoutes sets up ride routes, including the per-ride reservation
// and chat entry points
func SetupRideRoutes(r *gin.RouterGroup, rideHandler *handlers.RideHandler, reservationHandler *handlers.ReservationHandler, chatHandler *handlers.ChatHandler) {
	rides := r.Group("/rides")
	{
		rides.POST("", rideHandler.CreateRide)
		rides.GET("", rideHandler.ListUpcoming)
		rides.GET("/:ride_id", rideHandler.GetRide)
		rides.DELETE("/:ride_id", reservationHandler.DeleteRide)

		rides.POST("/:ride_id/reservations", reservationHandler.CreateReservation)
		rides.GET("/:ride_id/reservations", reservationHandler.ListRideReservations)

		rides.POST("/:ride_id/chat", chatHandler.OpenSession)
	}

	r.GET("/me/rides", rideHandler.ListMyRides)
}

func SetupReservationRoutes(r *gin.RouterGroup, reservationHandler *handlers.ReservationHandler) {
	reservations := r.Group("/reservations")
	{
		reservations.GET("", reservationHandler.ListMyReservations)
		reservations.POST("/transition", reservationHandler.TransitionReservation)
		reservations.POST("/:id/cancel", reservationHandler.CancelReservation)
	}
}

func SetupChatRoutes(r *gin.RouterGroup, chatHandler *handlers.ChatHandler) {
	chat := r.Group("/chat")
	{
		chat.GET("", chatHandler.Inbox)
		chat.GET("/:session_id", chatHandler.GetSession)
		chat.POST("/:session_id/report", chatHandler.ReportSession)
	}
}

// SetupModerationRoutes sets up the moderator-only routes
func SetupModerationRoutes(r *gin.RouterGroup, moderationHandler *handlers.ModerationHandler) {
	moderation := r.Group("/moderation")
	moderation.Use(middleware.PermissionRequired(models.PermissionModerateMessages))
	{
		moderation.POST("/messages/:message_id/hide", moderationHandler.HideMessage)
		moderation.POST("/messages/:message_id/unhide", moderationHandler.UnhideMessage)

		moderation.POST("/users/:user_id/report", moderationHandler.ReportUser)
		moderation.GET("/users/:user_id/actions", moderationHandler.ListUserActions)

		moderation.GET("/sessions", moderationHandler.ListSessions)
		moderation.GET("/sessions/:session_id/reports", moderationHandler.ListReports)
	}
}
