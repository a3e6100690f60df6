// Deterministic fake of the platform client, selected by configuration
// (MOCK_CHATGURU). It fabricates unique submission identifiers and always
// reports done, which lets the whole pipeline run without network access.
package chatguru

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tbourn/go-chat-import-backend/internal/domain"
)

// Mock implements Client without any network access.
type Mock struct {
	n atomic.Uint64
}

// NewMock constructs a Mock client.
func NewMock() *Mock { return &Mock{} }

// SubmitContact fabricates a unique submission id.
func (m *Mock) SubmitContact(ctx context.Context, creds domain.Credentials, contact Contact) (*SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &SubmissionError{Description: err.Error()}
	}
	id := fmt.Sprintf("mock_%06d", m.n.Add(1))
	return &SubmitResult{
		ChatAddID:   id,
		Description: "chat add accepted (mock)",
	}, nil
}

// CheckSubmissionStatus always confirms the addition.
func (m *Mock) CheckSubmissionStatus(ctx context.Context, creds domain.Credentials, chatNumber, chatAddID string) (*StatusResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, &CheckError{Description: err.Error()}
	}
	return &StatusResult{
		Status:      StatusDone,
		Description: "verified (mock)",
	}, nil
}
