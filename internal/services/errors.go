// Package services defines the business logic for workspaces, uploads, and
// the import pipeline. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

var (
	// ErrWorkspaceNotFound indicates that no workspace exists for the
	// presented fingerprint; credentials must be validated first.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrInvalidCredentials is returned when the external platform rejects
	// the presented key, phone, or account.
	ErrInvalidCredentials = errors.New("invalid platform credentials")

	// ErrMissingCredentials is returned when a request omits the API key or
	// phone identifier.
	ErrMissingCredentials = errors.New("key and phone_id are required")

	// ErrUploadNotFound indicates that the requested upload does not exist
	// or belongs to another workspace.
	ErrUploadNotFound = errors.New("upload not found")

	// ErrUploadNotCancelable is returned when cancellation targets an
	// upload that already reached a terminal status.
	ErrUploadNotCancelable = errors.New("upload cannot be canceled")

	// ErrNothingToRetry is returned when retry-failed finds no error items
	// on the upload.
	ErrNothingToRetry = errors.New("upload has no failed items")

	// ErrEmptySpreadsheet is returned when an uploaded file yields no
	// importable rows.
	ErrEmptySpreadsheet = errors.New("spreadsheet contains no importable rows")

	// ErrUsageLimitExceeded is returned when accepting an upload would push
	// the account past its addition quota.
	ErrUsageLimitExceeded = errors.New("account usage limit exceeded")
)
