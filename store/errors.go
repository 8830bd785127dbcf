package store

import (
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to store errors.
const (
	TextCodePersistenceFailed = "PERSISTENCE_FAILED"
	TextCodeReadFailed        = "READ_FAILED"
)

func persistenceError(err error, msg string) *goerrors.Error {
	return internalError(err, msg, TextCodePersistenceFailed)
}

func readError(err error, msg string) *goerrors.Error {
	return internalError(err, msg, TextCodeReadFailed)
}

// Wrap keeps the category of an existing *Error; storage failures are always
// reported as internal.
func internalError(err error, msg, code string) *goerrors.Error {
	e := goerrors.Wrap(err, goerrors.CategoryInternal, msg)
	e.Category = goerrors.CategoryInternal
	return e.WithTextCode(code)
}

// IsPersistence reports whether err was produced by a failed write.
func IsPersistence(err error) bool {
	var e *goerrors.Error
	if !goerrors.As(err, &e) {
		return false
	}
	return e.TextCode == TextCodePersistenceFailed
}

func isNotFound(err error) bool {
	return goerrors.Is(err, sql.ErrNoRows) || goerrors.IsNotFound(err)
}
