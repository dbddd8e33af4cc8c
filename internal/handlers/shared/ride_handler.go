package handlers

import (
	"carpool/internal/middleware"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/internal/validators"

	"github.com/gin-gonic/gin"
)

type RideHandler struct {
	rideService services.RideService
}

func NewRideHandler(rideService services.RideService) *RideHandler {
	return &RideHandler{
		rideService: rideService,
	}
}

// CreateRide publishes a ride driven by the caller
func (h *RideHandler) CreateRide(c *gin.Context) {
	var request validators.CreateRideRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		utils.BadRequestResponse(c, "Invalid request: "+err.Error())
		return
	}
	if errs := validators.ValidateCreateRide(&request); len(errs) > 0 {
		utils.ValidationErrorResponse(c, errs.Details())
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), middleware.GetPrincipal(c), request.ToRide())
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.CreatedResponse(c, "Ride published successfully", ride)
}

// ListUpcoming lists rides starting today or later
func (h *RideHandler) ListUpcoming(c *gin.Context) {
	params := utils.GetPaginationParams(c)
	rides, total, err := h.rideService.ListUpcoming(c.Request.Context(), params)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	meta := &utils.Meta{
		Pagination: utils.CreatePaginationMeta(params, total),
	}
	utils.SuccessResponseWithMeta(c, "Rides retrieved successfully", map[string]interface{}{"rides": rides}, meta)
}

func (h *RideHandler) GetRide(c *gin.Context) {
	rideID, ok := objectIDParam(c, "ride_id", "ride")
	if !ok {
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), rideID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Ride retrieved successfully", ride)
}

// ListMyRides lists the rides the caller drives
func (h *RideHandler) ListMyRides(c *gin.Context) {
	rides, err := h.rideService.ListMyRides(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.SuccessResponse(c, "Rides retrieved successfully", map[string]interface{}{"rides": rides})
}
