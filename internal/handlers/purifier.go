package handlers

import (
	"errors"
	"net/http"

	"molekule_bridge/internal/molekule"
	"molekule_bridge/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusModeSet   = "mode_set"
	statusSpeedSet  = "speed_set"
	statusPowerSet  = "power_set"
	statusRefreshed = "refreshed"

	errListDevices  = "failed to load devices"
	errGetDevice    = "failed to load device state"
	errGetReadings  = "failed to load readings"
	errCloudRequest = "cloud request failed"
	errCloudAuth    = "cloud authentication failed"
	errNotFound     = "device not found"
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// commandError maps a command failure onto an HTTP status. Unknown serials
// are the caller's fault, cloud failures are the upstream's, everything else
// is treated as a validation error.
func (h *Handler) commandError(c *gin.Context, err error, logKey, serial string) {
	switch {
	case errors.Is(err, service.ErrDeviceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": errNotFound})
	case molekule.IsAuthError(err):
		h.logAndJSONError(c, http.StatusBadGateway, errCloudAuth, logKey, err, "serial", serial)
	case isCloudError(err):
		h.logAndJSONError(c, http.StatusBadGateway, errCloudRequest, logKey, err, "serial", serial)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}

func isCloudError(err error) bool {
	var apiErr *molekule.APIError
	return errors.As(err, &apiErr)
}

// auditCommand notes who issued an accepted control command.
func (h *Handler) auditCommand(c *gin.Context, action, serial string, kv ...interface{}) {
	if h.log == nil {
		return
	}
	fields := append([]interface{}{"user", getUserID(c), "serial", serial}, kv...)
	h.log.Infow(action, fields...)
}

// Respond with a status and include the device's confirmed state if
// available (best-effort; the eager refresh may still be converging).
func (h *Handler) respondWithStatusAndState(c *gin.Context, serial, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status, "serial": serial}
	for k, v := range extra {
		resp[k] = v
	}
	d, err := h.services.Monitoring.Device(ctx, serial)
	if err == nil {
		resp["state"] = d
	}
	c.JSON(http.StatusOK, resp)
}

// Request DTO for setting the fan mode.
type modeRequest struct {
	Mode string `json:"mode" binding:"required"` // auto | manual
}

// Request DTO for setting a manual fan speed.
type speedRequest struct {
	Speed *int `json:"speed" binding:"required"` // 0 (off) .. 6
}

// Request DTO for power.
type powerRequest struct {
	On *bool `json:"on" binding:"required"`
}

// SetModeRequest is an exported model for Swagger docs of the setMode payload.
type SetModeRequest struct {
	// Mode to set. Allowed: auto, manual
	Mode string `json:"mode" example:"auto"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List purifiers
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, devices"
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices [get]
// @Security     BearerAuth
func (h *Handler) listDevices(c *gin.Context) {
	ctx := c.Request.Context()
	devices, err := h.services.Monitoring.Devices(ctx)
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errListDevices, "devices_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   len(devices),
		"devices": devices,
	})
}

// @Summary      Get purifier state
// @Tags         devices
// @Produce      json
// @Param        serial  path  string  true  "Device serial"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices/{serial} [get]
// @Security     BearerAuth
func (h *Handler) getDevice(c *gin.Context) {
	ctx := c.Request.Context()
	d, err := h.services.Monitoring.Device(ctx, c.Param("serial"))
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errNotFound})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetDevice, "device_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// @Summary      Get latest pollutant readings
// @Description  Returns the last full sensor batch. Metrics the device never reported come back as null.
// @Tags         devices
// @Produce      json
// @Param        serial  path  string  true  "Device serial"
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/devices/{serial}/readings [get]
// @Security     BearerAuth
func (h *Handler) getReadings(c *gin.Context) {
	ctx := c.Request.Context()
	batch, err := h.services.Monitoring.Readings(ctx, c.Param("serial"))
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errNotFound})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetReadings, "readings_get_failed", err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// @Summary      Set fan mode
// @Description  auto switches the purifier to smart mode; manual drops it to its lowest speed
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        serial  path  string          true  "Device serial"
// @Param        body    body  SetModeRequest  true  "Mode payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{serial}/mode [post]
// @Security     BearerAuth
func (h *Handler) setMode(c *gin.Context) {
	var req modeRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	serial := c.Param("serial")
	if err := h.services.Purifier.SetMode(c.Request.Context(), serial, req.Mode); err != nil {
		h.commandError(c, err, "device_set_mode_failed", serial)
		return
	}
	h.auditCommand(c, "mode set", serial, "mode", req.Mode)
	h.respondWithStatusAndState(c, serial, statusModeSet, gin.H{"mode": req.Mode})
}

// @Summary      Set fan speed
// @Description  Speed 0 is treated as a power-off request
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        serial  path  string        true  "Device serial"
// @Param        body    body  speedRequest  true  "Speed payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{serial}/speed [post]
// @Security     BearerAuth
func (h *Handler) setSpeed(c *gin.Context) {
	var req speedRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	serial := c.Param("serial")
	if err := h.services.Purifier.SetSpeed(c.Request.Context(), serial, *req.Speed); err != nil {
		h.commandError(c, err, "device_set_speed_failed", serial)
		return
	}
	h.auditCommand(c, "speed set", serial, "speed", *req.Speed)
	h.respondWithStatusAndState(c, serial, statusSpeedSet, gin.H{"speed": *req.Speed})
}

// @Summary      Set power
// @Tags         devices
// @Accept       json
// @Produce      json
// @Param        serial  path  string        true  "Device serial"
// @Param        body    body  powerRequest  true  "Power payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      502   {object}  map[string]string
// @Router       /api/v1/devices/{serial}/power [post]
// @Security     BearerAuth
func (h *Handler) setPower(c *gin.Context) {
	var req powerRequest
	if ok := h.bindJSONOrBadRequest(c, &req); !ok {
		return
	}
	serial := c.Param("serial")
	if err := h.services.Purifier.SetPower(c.Request.Context(), serial, *req.On); err != nil {
		h.commandError(c, err, "device_set_power_failed", serial)
		return
	}
	h.auditCommand(c, "power set", serial, "on", *req.On)
	h.respondWithStatusAndState(c, serial, statusPowerSet, gin.H{"on": *req.On})
}

// @Summary      Refresh device state
// @Description  Polls the vendor cloud out of cycle and waits for the result
// @Tags         devices
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      502  {object}  map[string]string
// @Router       /api/v1/devices/refresh [post]
// @Security     BearerAuth
func (h *Handler) refreshDevices(c *gin.Context) {
	if err := h.services.Coordinator.Refresh(c.Request.Context()); err != nil {
		msg := errCloudRequest
		if molekule.IsAuthError(err) {
			msg = errCloudAuth
		}
		h.logAndJSONError(c, http.StatusBadGateway, msg, "devices_refresh_failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": statusRefreshed})
}
