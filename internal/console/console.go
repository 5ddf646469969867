package console

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonnyarndt/klimate/internal/config"
	"github.com/jonnyarndt/klimate/internal/hvac"
	"github.com/jonnyarndt/klimate/internal/protocol/climate"
)

var startedAt = time.Now()

// ControllerAPI is the slice of the controller the console needs.
type ControllerAPI interface {
	CurrentStatus() hvac.StatusSnapshot
	SetZoneTemperature(zone climate.ZoneID, tempC float64) error
	SetZoneTemperatures(zones []climate.ZoneID, tempC float64) error
}

type setpointRequest struct {
	// Pointer so an explicit 0.0 survives the required check.
	TemperatureC *float64 `json:"temperature_c"`
}

// NewRouter builds the operator console: health, status, setpoint
// commands and Prometheus metrics. No presentation logic lives here.
func NewRouter(ctrl ControllerAPI, cfg config.ConsoleConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if len(cfg.CorsOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CorsOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type"},
			MaxAge:       12 * time.Hour,
		}))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(startedAt).String(),
			"service": "klimatectl",
		})
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, ctrl.CurrentStatus())
	})
	r.POST("/zones/:id/setpoint", func(c *gin.Context) {
		zone, err := strconv.Atoi(c.Param("id"))
		if err != nil || zone < 1 || zone > 255 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "zone id must be 1-255"})
			return
		}
		var req setpointRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.TemperatureC == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must carry temperature_c"})
			return
		}
		if err := ctrl.SetZoneTemperature(climate.ZoneID(zone), *req.TemperatureC); err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"zone":          zone,
			"temperature_c": climate.RoundSetpoint(*req.TemperatureC),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, hvac.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, hvac.ErrNotConnected), errors.Is(err, hvac.ErrSendFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}
