package handlers

import (
	"carpool/internal/middleware"
	"carpool/internal/models"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ReservationHandler struct {
	reservationService services.ReservationService
}

func NewReservationHandler(reservationService services.ReservationService) *ReservationHandler {
	return &ReservationHandler{
		reservationService: reservationService,
	}
}

// CreateReservation requests a seat on a ride
func (h *ReservationHandler) CreateReservation(c *gin.Context) {
	rideID, ok := objectIDParam(c, "ride_id", "ride")
	if !ok {
		return
	}

	reservation, err := h.reservationService.CreateReservation(c.Request.Context(), middleware.GetPrincipal(c), rideID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Reservation requested successfully", reservation)
}

// TransitionReservation applies a driver decision: accept or decline
func (h *ReservationHandler) TransitionReservation(c *gin.Context) {
	var request validators.ReservationTransitionRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateReservationTransition(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	reservationID, _ := primitive.ObjectIDFromHex(request.ReservationID)
	reservation, err := h.reservationService.Transition(
		c.Request.Context(),
		middleware.GetPrincipal(c),
		reservationID,
		models.ReservationAction(request.Action),
	)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Reservation updated successfully", reservation)
}

func (h *ReservationHandler) CancelReservation(c *gin.Context) {
	reservationID, ok := objectIDParam(c, "id", "reservation")
	if !ok {
		return
	}

	reservation, err := h.reservationService.Cancel(c.Request.Context(), middleware.GetPrincipal(c), reservationID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Reservation canceled successfully", reservation)
}

func (h *ReservationHandler) ListMyReservations(c *gin.Context) {
	reservations, err := h.reservationService.ListMyReservations(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Reservations retrieved successfully", map[string]interface{}{"reservations": reservations})
}

func (h *ReservationHandler) ListRideReservations(c *gin.Context) {
	rideID, ok := objectIDParam(c, "ride_id", "ride")
	if !ok {
		return
	}

	reservations, err := h.reservationService.ListRideReservations(c.Request.Context(), middleware.GetPrincipal(c), rideID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Reservations retrieved successfully", map[string]interface{}{"reservations": reservations})
}

// DeleteRide removes a ride that is vacant or already over
func (h *ReservationHandler) DeleteRide(c *gin.Context) {
	rideID, ok := objectIDParam(c, "ride_id", "ride")
	if !ok {
		return
	}

	if err := h.reservationService.SafeDeleteRide(c.Request.Context(), middleware.GetPrincipal(c), rideID); err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride deleted successfully", nil)
}
