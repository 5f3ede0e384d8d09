// Package store gives typed, field-level access to user records.
package store

import (
	"context"
	"errors"
	"iter"

	"mining-bot/internal/models"
)

var (
	// ErrNotFound is returned when the referenced record does not exist.
	ErrNotFound = errors.New("user record not found")
	// ErrAlreadyExists is returned by Set when the id is already taken.
	ErrAlreadyExists = errors.New("user record already exists")
	// ErrUnavailable wraps transient failures of the underlying database.
	ErrUnavailable = errors.New("store unavailable")
	// ErrMalformedRecord marks a stored record that cannot be used.
	ErrMalformedRecord = models.ErrMalformed
	// ErrPreconditionFailed is returned by Update when a guard op no longer holds.
	ErrPreconditionFailed = errors.New("update precondition failed")
)

// Store is the persistence contract shared by the linker and the jobs.
// Every Update call is applied atomically to a single record.
type Store interface {
	Get(ctx context.Context, id string) (*models.UserRecord, error)
	Set(ctx context.Context, rec *models.UserRecord) error
	Update(ctx context.Context, id string, ops ...Op) error
	// Scan yields every record once, in no particular order. Malformed
	// records are yielded together with an ErrMalformedRecord error; any other
	// error ends the sequence.
	Scan(ctx context.Context) iter.Seq2[*models.UserRecord, error]
}
