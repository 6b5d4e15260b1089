// Package common defines shared constants, sentinel errors and stable error
// codes used across Sheet Guardian components. Callers should use errors.Is
// to match sentinel values and ErrorCode to branch on a stable identifier.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("concurrent update conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// File validation errors.
	ErrInvalidExtension = errors.New("invalid file extension")
	ErrEmptyFile        = errors.New("empty file")
	ErrFileTooLarge     = errors.New("file too large")
	ErrCorruptedArchive = errors.New("corrupted archive")

	// Auth errors (session token problems).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Processing token lifecycle errors.
	ErrProcessingTokenInvalid = errors.New("invalid processing token")
	ErrProcessingTokenUsed    = errors.New("processing token already used")
	ErrProcessingTokenExpired = errors.New("processing token expired")
)

// Stable error codes an external caller may branch on. These identifiers are
// part of the public contract and must not be renamed.
const (
	CodeInvalidExtension       = "INVALID_EXTENSION"
	CodeEmptyFile              = "EMPTY_FILE"
	CodeFileTooLarge           = "FILE_TOO_LARGE"
	CodeCorruptedArchive       = "CORRUPTED_ARCHIVE"
	CodeWeeklyLimitReached     = "WEEKLY_LIMIT_REACHED"
	CodeMonthlyLimitReached    = "MONTHLY_LIMIT_REACHED"
	CodeInvalidProcessingToken = "INVALID_PROCESSING_TOKEN"
	CodeProcessingTokenUsed    = "PROCESSING_TOKEN_USED"
	CodeProcessingTokenExpired = "PROCESSING_TOKEN_EXPIRED"
)

// ErrorCode maps a sentinel error to its stable code. Unknown errors map to
// an empty string so callers can fall back to a generic failure path.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidExtension):
		return CodeInvalidExtension
	case errors.Is(err, ErrEmptyFile):
		return CodeEmptyFile
	case errors.Is(err, ErrFileTooLarge):
		return CodeFileTooLarge
	case errors.Is(err, ErrCorruptedArchive):
		return CodeCorruptedArchive
	case errors.Is(err, ErrProcessingTokenInvalid):
		return CodeInvalidProcessingToken
	case errors.Is(err, ErrProcessingTokenUsed):
		return CodeProcessingTokenUsed
	case errors.Is(err, ErrProcessingTokenExpired):
		return CodeProcessingTokenExpired
	}
	return ""
}
