// Package imports runs the bulk-import lifecycle: upload, extraction,
// reconciliation against the persisted corpus, reviewer decisions, and the
// final all-or-nothing save.
//
// # Error Codes Reference
//
// Failures surface to clients as user-facing messages with codes for
// support reference:
//
//	FILE001 - Invalid file type: the upload is not CSV, JSON, or Excel
//	UPL001  - Upload failed: the file could not be stored
//	EXT001  - Extraction failed: no usable records came out of the file
//	REC001  - Reconciliation unavailable: the existing corpus could not be
//	          loaded, so candidates cannot be classified
//	SAVE001 - Save failed: the reviewed records were not persisted; the
//	          batch writes all-or-nothing, so nothing was written
//	SES001  - Session not found (expired or never existed)
//	SES002  - Busy: the concurrent-import limit is reached
//	SES003  - Wrong phase: the requested action is not valid in the
//	          session's current phase
//	ERR000  - Anything unrecognized
package imports

import (
	"errors"
	"fmt"
)

// Sentinel errors for the import lifecycle. Wrap them with %w so callers
// can classify with errors.Is and MapError can pick the right message.
var (
	// ErrInvalidFileType rejects uploads outside the CSV/JSON/Excel
	// allow-list. Raised before any session is created.
	ErrInvalidFileType = errors.New("invalid file type")

	// ErrUploadFailed marks a failure storing the raw file.
	ErrUploadFailed = errors.New("upload failed")

	// ErrExtractionFailed marks a failure turning the file into records.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrReconciliationUnavailable marks a failure loading the existing
	// corpus. Candidates are never classified against a guessed-empty
	// corpus; the import fails instead.
	ErrReconciliationUnavailable = errors.New("reconciliation unavailable")

	// ErrPersistenceFailed marks a failed bulk save. The write is
	// transactional, so a failed save leaves the corpus untouched.
	ErrPersistenceFailed = errors.New("save failed")

	// ErrSessionNotFound means the session ID is unknown or was swept.
	ErrSessionNotFound = errors.New("import session not found")

	// ErrBusy means the concurrent-import gate is full.
	ErrBusy = errors.New("too many concurrent imports, please try again later")

	// ErrPhase means the requested operation is not legal in the
	// session's current phase.
	ErrPhase = errors.New("operation not valid in current phase")
)

// phaseMismatch builds the error for an operation attempted in the wrong
// phase.
func phaseMismatch(op string, have Phase) error {
	return fmt.Errorf("%s while %s: %w", op, have, ErrPhase)
}

// UserMessage provides user-friendly error information with actionable
// guidance.
type UserMessage struct {
	Message string `json:"message"` // what happened
	Action  string `json:"action"`  // what to do about it
	Code    string `json:"code"`    // error code for support reference
}

// errorMapping pairs a sentinel with its user message.
type errorMapping struct {
	sentinel error
	msg      UserMessage
}

// errorMappings is checked in order with errors.Is; the first match wins.
var errorMappings = []errorMapping{
	{
		sentinel: ErrInvalidFileType,
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload a CSV, JSON, or Excel file",
			Code:    "FILE001",
		},
	},
	{
		sentinel: ErrUploadFailed,
		msg: UserMessage{
			Message: "The file could not be uploaded",
			Action:  "Check your connection and try again",
			Code:    "UPL001",
		},
	},
	{
		sentinel: ErrExtractionFailed,
		msg: UserMessage{
			Message: "No records could be read from the file",
			Action:  "Check the file's contents and column headers, then try again",
			Code:    "EXT001",
		},
	},
	{
		sentinel: ErrReconciliationUnavailable,
		msg: UserMessage{
			Message: "The existing catalog could not be loaded for comparison",
			Action:  "Try the import again in a few moments",
			Code:    "REC001",
		},
	},
	{
		sentinel: ErrPersistenceFailed,
		msg: UserMessage{
			Message: "The reviewed records could not be saved",
			Action:  "Nothing was written. Try the import again",
			Code:    "SAVE001",
		},
	},
	{
		sentinel: ErrSessionNotFound,
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The session may have expired. Start a new import",
			Code:    "SES001",
		},
	},
	{
		sentinel: ErrBusy,
		msg: UserMessage{
			Message: "Another import is already in progress",
			Action:  "Wait for it to finish and try again",
			Code:    "SES002",
		},
	},
	{
		sentinel: ErrPhase,
		msg: UserMessage{
			Message: "That action is not available right now",
			Action:  "Check the import status and try again",
			Code:    "SES003",
		},
	},
}

// MapError converts any import error into a user-facing message. Unknown
// errors map to the ERR000 fallback; the technical detail stays in the logs,
// not the response.
func MapError(err error) UserMessage {
	for _, m := range errorMappings {
		if errors.Is(err, m.sentinel) {
			return m.msg
		}
	}
	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}
