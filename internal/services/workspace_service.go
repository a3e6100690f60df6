// Package services – WorkspaceService
//
// This file implements WorkspaceService, which owns tenant identity and
// credential validation. A workspace is addressed by a fingerprint derived
// deterministically from the external credentials, so re-validating the
// same credentials always resolves to the same row. Validation performs a
// probe call against the external platform (or trusts the mock), upserts
// the workspace, and reports quota usage plus recent uploads.
//
// Observability: public methods are OpenTelemetry-instrumented.
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chat-import-backend/internal/chatguru"
	"github.com/tbourn/go-chat-import-backend/internal/domain"
	"github.com/tbourn/go-chat-import-backend/internal/repo"
)

// probeChatNumber is an intentionally unreachable number used for the
// credential probe. The platform rejects the chat itself, but an auth-level
// rejection is distinguishable from a content-level one.
const probeChatNumber = "00009000000000"

// WorkspaceFingerprint derives the tenant fingerprint from the raw
// credential tuple: lowercase hex SHA-256 over the concatenation
// server|key|accountID|phoneID without separators.
func WorkspaceFingerprint(server, key, accountID, phoneID string) string {
	sum := sha256.Sum256([]byte(server + key + accountID + phoneID))
	return hex.EncodeToString(sum[:])
}

// UsageReport summarizes an account's quota position.
type UsageReport struct {
	Total      int64   `json:"total"`
	Limit      int64   `json:"limit"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
}

// LimitReached reports whether the account has exhausted its quota.
func (u UsageReport) LimitReached() bool { return u.Total >= u.Limit }

// CredentialCheck is the outcome of validating one credential tuple.
type CredentialCheck struct {
	WorkspaceHash    string          `json:"workspace_hash"`
	Usage            UsageReport     `json:"usage"`
	LimitReached     bool            `json:"limit_reached"`
	HasActiveUploads bool            `json:"has_active_uploads"`
	Uploads          []domain.Upload `json:"uploads"`
}

// WorkspaceService validates credentials and maintains workspace rows.
type WorkspaceService struct {
	DB     *gorm.DB
	Client chatguru.Client

	// UsageLimit caps confirmed additions per external account.
	UsageLimit int64
	// RecentUploads bounds the upload list returned by CheckCredentials.
	RecentUploads int
}

// NewWorkspaceService constructs a WorkspaceService with default limits.
func NewWorkspaceService(db *gorm.DB, client chatguru.Client, usageLimit int64) *WorkspaceService {
	return &WorkspaceService{
		DB:            db,
		Client:        client,
		UsageLimit:    usageLimit,
		RecentUploads: 20,
	}
}

// CheckCredentials probes the external platform with the supplied
// credentials, upserts the workspace row on success, and reports quota and
// recent uploads. ErrInvalidCredentials is returned for auth-level
// rejections; platform errors unrelated to authentication count as valid.
func (s *WorkspaceService) CheckCredentials(ctx context.Context, server, key, accountID, phoneID string) (*CredentialCheck, error) {
	tr := otel.Tracer("services/WorkspaceService")
	ctx, span := tr.Start(ctx, "CheckCredentials",
		trace.WithAttributes(attribute.String("platform.server", server)),
	)
	defer span.End()

	server = strings.TrimSpace(server)
	key = strings.TrimSpace(key)
	accountID = strings.TrimSpace(accountID)
	phoneID = strings.TrimSpace(phoneID)
	if server == "" || key == "" || accountID == "" || phoneID == "" {
		return nil, ErrMissingCredentials
	}

	hash := WorkspaceFingerprint(server, key, accountID, phoneID)
	span.SetAttributes(attribute.String("workspace.hash", hash))

	creds := domain.Credentials{Key: key, PhoneID: phoneID, Server: server, AccountID: accountID}
	if err := s.probe(ctx, creds); err != nil {
		return nil, err
	}

	if err := repo.UpsertWorkspace(ctx, s.DB, &domain.Workspace{
		Hash:      hash,
		AccountID: accountID,
		Server:    server,
	}); err != nil {
		return nil, err
	}

	usage, err := s.AccountUsage(ctx, accountID)
	if err != nil {
		return nil, err
	}

	uploads, err := repo.ListUploads(ctx, s.DB, hash, s.recentUploads())
	if err != nil {
		return nil, err
	}
	hasActive := false
	for _, u := range uploads {
		if !domain.IsTerminalUploadStatus(u.Status) {
			hasActive = true
			break
		}
	}

	return &CredentialCheck{
		WorkspaceHash:    hash,
		Usage:            usage,
		LimitReached:     usage.LimitReached(),
		HasActiveUploads: hasActive,
		Uploads:          uploads,
	}, nil
}

// probe submits an intentionally invalid contact. Only an auth-level
// rejection counts as invalid credentials.
func (s *WorkspaceService) probe(ctx context.Context, creds domain.Credentials) error {
	_, err := s.Client.SubmitContact(ctx, creds, chatguru.Contact{
		ChatNumber: probeChatNumber,
		Name:       "credential probe",
	})
	if err == nil {
		return nil
	}
	var ve *chatguru.ValidationError
	if errors.As(err, &ve) {
		return ErrInvalidCredentials
	}
	// Content-level rejection of the probe number still proves the key,
	// account, and phone are accepted.
	return nil
}

// AccountUsage computes the account's quota position from the usage
// ledger.
func (s *WorkspaceService) AccountUsage(ctx context.Context, accountID string) (UsageReport, error) {
	total, err := repo.AccountUsage(ctx, s.DB, accountID)
	if err != nil {
		return UsageReport{}, err
	}
	limit := s.UsageLimit
	if limit <= 0 {
		limit = 10000
	}
	remaining := limit - total
	if remaining < 0 {
		remaining = 0
	}
	return UsageReport{
		Total:      total,
		Limit:      limit,
		Remaining:  remaining,
		Percentage: float64(total) / float64(limit) * 100,
	}, nil
}

// Get fetches a workspace by fingerprint.
func (s *WorkspaceService) Get(ctx context.Context, hash string) (*domain.Workspace, error) {
	ws, err := repo.GetWorkspace(ctx, s.DB, hash)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkspaceNotFound
		}
		return nil, err
	}
	return ws, nil
}

func (s *WorkspaceService) recentUploads() int {
	if s.RecentUploads <= 0 {
		return 20
	}
	return s.RecentUploads
}
