// Package chatguru implements the client for the external messaging
// platform. The platform exposes a single form-encoded endpoint per server
// identifier with an "action" discriminator; this package wraps the two
// actions the importer needs (chat_add, chat_add_status) behind a small
// interface so that the tick driver can run against either the real HTTP
// client or a deterministic fake.
//
// All persistence is the caller's responsibility: a client call has no side
// effect beyond the network request.
package chatguru

import (
	"context"
	"fmt"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// Submission status values reported by chat_add_status.
const (
	StatusDone    = "done"
	StatusPending = "pending"
)

// Contact is one chat to be registered on the platform.
type Contact struct {
	ChatNumber string
	Name       string
	Text       string
	UserID     string
	DialogID   string
}

// SubmitResult is the successful outcome of a chat_add call. ChatAddID is
// the platform-issued submission identifier used for later status polling.
type SubmitResult struct {
	ChatAddID   string
	Description string
}

// StatusResult is the outcome of a chat_add_status call. Status is either
// StatusDone or StatusPending; any other platform answer is surfaced as a
// CheckError instead.
type StatusResult struct {
	Status      string
	Description string
}

// Done reports whether the platform confirmed the addition.
func (r *StatusResult) Done() bool { return r.Status == StatusDone }

// Client is the contract between the item state machine and the platform.
// Implementations must be safe for concurrent use; status checks are issued
// in parallel batches.
type Client interface {
	// SubmitContact registers one contact (action chat_add). A response
	// carrying a submission identifier is always treated as success.
	SubmitContact(ctx context.Context, creds domain.Credentials, contact Contact) (*SubmitResult, error)

	// CheckSubmissionStatus polls one prior submission (action
	// chat_add_status).
	CheckSubmissionStatus(ctx context.Context, creds domain.Credentials, chatNumber, chatAddID string) (*StatusResult, error)
}

// ValidationError means the platform rejected the credentials themselves
// (bad key, account, or phone identifier). It is never retried
// automatically; the user has to fix the credentials.
type ValidationError struct {
	Description string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("chatguru: invalid credentials: %s", e.Description)
}

// SubmissionError means a chat_add call failed for a reason other than bad
// credentials. The item moves to the error state and a user-triggered retry
// is required.
type SubmissionError struct {
	Code        int
	Description string
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("chatguru: chat_add failed: %s", e.Description)
}

// CheckError means a chat_add_status call returned neither done nor
// pending, or failed in transport.
type CheckError struct {
	Description string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("chatguru: chat_add_status failed: %s", e.Description)
}
