package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"penalty-service/internal/domain/penalty"
	"penalty-service/internal/metrics"
	"penalty-service/internal/service"
)

type Handler struct {
	penaltyService *service.PenaltyService
	metrics        *metrics.Metrics
	log            zerolog.Logger
}

func NewHandler(
	penaltyService *service.PenaltyService,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		penaltyService: penaltyService,
		metrics:        m,
		log:            log,
	}
}

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/api/health", h.health)
	r.GET("/metrics", gin.WrapH(h.metrics.Handler()))

	api := r.Group("/api/penalty")
	{
		api.POST("/register", h.registerVehicle)
		api.POST("/add", h.addViolation)
		api.GET("/user/:plate_no/full_profile", h.getFullProfile)
		api.GET("/violation/:reference", h.getViolation)
		api.GET("/rules", h.listRules)
	}
}

type registerRequest struct {
	PlateNo     string  `json:"plate_no" binding:"required"`
	OwnerName   string  `json:"owner_name" binding:"required"`
	Email       *string `json:"email"`
	VehicleType string  `json:"vehicle_type" binding:"required"`
}

type addViolationRequest struct {
	PlateNo       string `json:"plate_no" binding:"required"`
	ViolationCode string `json:"violation_code" binding:"required"`
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) registerVehicle(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	driver, err := h.penaltyService.RegisterVehicle(c.Request.Context(), penalty.Registration{
		PlateNo:     req.PlateNo,
		OwnerName:   req.OwnerName,
		Email:       req.Email,
		VehicleType: req.VehicleType,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"status": "success",
		"driver": driver,
	})
}

func (h *Handler) addViolation(c *gin.Context) {
	var req addViolationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
		return
	}

	event, err := h.penaltyService.AddViolation(c.Request.Context(), req.PlateNo, req.ViolationCode)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, event)
}

func (h *Handler) getFullProfile(c *gin.Context) {
	view, err := h.penaltyService.GetFullProfile(c.Request.Context(), c.Param("plate_no"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, errorResponse("Vehicle not found. Please register first."))
			return
		}
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) getViolation(c *gin.Context) {
	event, err := h.penaltyService.GetViolation(c.Request.Context(), c.Param("reference"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, event)
}

func (h *Handler) listRules(c *gin.Context) {
	c.JSON(http.StatusOK, h.penaltyService.Rules())
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrUnregisteredVehicle),
		errors.Is(err, service.ErrUnknownViolationCode):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrAlreadyRegistered):
		c.JSON(http.StatusConflict, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}
