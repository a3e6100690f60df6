// Real HTTP implementation of the platform client.
//
// Requests are application/x-www-form-urlencoded POSTs against
// https://{server}.chatguru.app/api/v1; responses are JSON carrying either a
// submission identifier (success) or a description/error string. Error
// classification follows the platform's conventions: HTTP 401/403 and
// auth-flavored description strings mean bad credentials, everything else is
// a submission/check failure.
package chatguru

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// defaultBase is the endpoint template; %s is the workspace's server
// identifier (e.g. "s10").
const defaultBase = "https://%s.chatguru.app/api/v1"

// maxResponseBytes caps how much of a platform response is read. Real
// responses are small JSON objects.
const maxResponseBytes = 1 << 20

// HTTPClient talks to the real platform.
type HTTPClient struct {
	// HTTP is the underlying client. NewHTTPClient sets a sane timeout.
	HTTP *http.Client
	// Base is the endpoint template with one %s verb for the server
	// identifier. Tests point it at an httptest server.
	Base string
}

// NewHTTPClient constructs an HTTPClient with the given request timeout.
func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		HTTP: &http.Client{Timeout: timeout},
		Base: defaultBase,
	}
}

// apiResponse is the union of fields the platform returns for both actions.
type apiResponse struct {
	ChatAddID     string `json:"chat_add_id"`
	ChatAddStatus string `json:"chat_add_status"`
	Description   string `json:"description"`
	Err           string `json:"error"`
}

// message returns the most specific human-readable text in the response.
func (r *apiResponse) message() string {
	if r.Description != "" {
		return r.Description
	}
	return r.Err
}

// SubmitContact implements Client.
func (c *HTTPClient) SubmitContact(ctx context.Context, creds domain.Credentials, contact Contact) (*SubmitResult, error) {
	form := url.Values{}
	form.Set("action", "chat_add")
	form.Set("key", creds.Key)
	form.Set("account_id", creds.AccountID)
	form.Set("phone_id", creds.PhoneID)
	form.Set("chat_number", contact.ChatNumber)
	form.Set("name", contact.Name)
	// The platform requires the text field to be present; an empty value is
	// sent as a single space.
	if strings.TrimSpace(contact.Text) == "" {
		form.Set("text", " ")
	} else {
		form.Set("text", contact.Text)
	}
	if contact.UserID != "" {
		form.Set("user_id", contact.UserID)
	}
	if contact.DialogID != "" {
		form.Set("dialog_id", contact.DialogID)
	}

	status, body, err := c.post(ctx, creds.Server, form)
	if err != nil {
		return nil, &SubmissionError{Description: err.Error()}
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return nil, &ValidationError{Description: body.message()}
	}
	if status == http.StatusOK && body.ChatAddID != "" {
		return &SubmitResult{ChatAddID: body.ChatAddID, Description: body.Description}, nil
	}
	msg := body.message()
	if msg == "" {
		msg = fmt.Sprintf("chat add failed (status %d)", status)
	}
	if isCredentialMessage(msg) {
		return nil, &ValidationError{Description: msg}
	}
	return nil, &SubmissionError{Code: status, Description: msg}
}

// CheckSubmissionStatus implements Client.
func (c *HTTPClient) CheckSubmissionStatus(ctx context.Context, creds domain.Credentials, chatNumber, chatAddID string) (*StatusResult, error) {
	form := url.Values{}
	form.Set("action", "chat_add_status")
	form.Set("key", creds.Key)
	form.Set("account_id", creds.AccountID)
	form.Set("phone_id", creds.PhoneID)
	form.Set("chat_number", chatNumber)
	form.Set("chat_add_id", chatAddID)

	status, body, err := c.post(ctx, creds.Server, form)
	if err != nil {
		return nil, &CheckError{Description: err.Error()}
	}
	if status == http.StatusOK {
		switch body.ChatAddStatus {
		case StatusDone, StatusPending:
			return &StatusResult{Status: body.ChatAddStatus, Description: body.Description}, nil
		}
	}
	msg := body.message()
	if msg == "" {
		msg = fmt.Sprintf("status check failed (status %d)", status)
	}
	return nil, &CheckError{Description: msg}
}

// post sends one form-encoded request and decodes the JSON response. The
// HTTP status is returned alongside the body so callers can classify
// auth failures; a non-2xx status is not an error by itself.
func (c *HTTPClient) post(ctx context.Context, server string, form url.Values) (int, *apiResponse, error) {
	endpoint := fmt.Sprintf(c.Base, server)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	var body apiResponse
	if len(raw) > 0 {
		// A malformed body is treated as an empty response; the HTTP status
		// still drives classification.
		_ = json.Unmarshal(raw, &body)
	}
	return resp.StatusCode, &body, nil
}

// isCredentialMessage detects auth-flavored platform error descriptions.
func isCredentialMessage(msg string) bool {
	m := strings.ToLower(msg)
	return strings.Contains(m, "auth") || strings.Contains(m, "key") || strings.Contains(m, "account")
}
