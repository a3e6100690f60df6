// Credential check endpoint.
//
// POST /credentials/check validates an external credential tuple against
// the messaging platform, upserts the workspace record on success, and
// reports the account's quota position plus recent uploads. The returned
// workspace_hash is what the client presents in X-Workspace-Hash on every
// subsequent call.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chat-import-backend/internal/services"
)

// CheckCredentialsRequest is the JSON payload for credential validation.
type CheckCredentialsRequest struct {
	// Server is the platform server identifier (e.g. "s10").
	Server string `json:"server" binding:"required" example:"s10"`
	// Key is the platform API key.
	Key string `json:"key" binding:"required"`
	// AccountID is the platform account identifier.
	AccountID string `json:"account_id" binding:"required"`
	// PhoneID is the platform phone identifier.
	PhoneID string `json:"phone_id" binding:"required"`
}

// CheckCredentials godoc
// @ID          checkCredentials
// @Summary     Validate platform credentials
// @Description Probes the messaging platform with the supplied credentials, registers the workspace, and reports quota usage and recent uploads.
// @Tags        Credentials
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CheckCredentialsRequest  true  "Credential tuple"
//
// @Success     200  {object}  services.CredentialCheck
// @Failure     400  {object}  handlers.ErrorResponse  "Missing fields"
// @Failure     401  {object}  handlers.ErrorResponse  "Credentials rejected by the platform"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /credentials/check [post]
func (h *Handlers) CheckCredentials(c *gin.Context) {
	var req CheckCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "server, key, account_id and phone_id are required")
		return
	}

	check, err := h.credSvc.CheckCredentials(c.Request.Context(), req.Server, req.Key, req.AccountID, req.PhoneID)
	switch {
	case errors.Is(err, services.ErrMissingCredentials):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, ErrCodeInvalidCredentials, "credentials rejected by the platform")
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, check)
}
