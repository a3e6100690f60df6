// Tick and cleanup trigger endpoints.
//
// The pipeline has no background process of its own: an external scheduler
// calls POST /tick on a fixed cadence, and POST /cleanup/daily once per
// day. Both routes sit behind CronAuth.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RunTick godoc
// @ID          runTick
// @Summary     Drive one pipeline pass
// @Description Processes every due workspace once: submits queued items within the rate budget, polls waiting batches, and recomputes upload aggregates.
// @Tags        Operations
// @Produce     json
//
// @Param       Authorization  header  string  false  "Bearer cron secret"
//
// @Success     200  {object}  services.TickResult
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid cron secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Tick failed"
// @Router      /tick [post]
func (h *Handlers) RunTick(c *gin.Context) {
	res, err := h.tickSvc.Tick(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeTickFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}

// RunCleanup godoc
// @ID          runCleanup
// @Summary     Run the daily retention pass
// @Description Deletes completed uploads and audit entries older than the retention window. Items cascade with their upload.
// @Tags        Operations
// @Produce     json
//
// @Param       Authorization  header  string  false  "Bearer cron secret"
//
// @Success     200  {object}  services.CleanupResult
// @Failure     401  {object}  handlers.ErrorResponse  "Missing or invalid cron secret"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /cleanup/daily [post]
func (h *Handlers) RunCleanup(c *gin.Context) {
	res, err := h.cleanupSvc.Run(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, res)
}
