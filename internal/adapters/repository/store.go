// Package repository holds the in-memory gallery of enrolled face descriptors.
package repository

import (
	"context"

	"github.com/okian/rollcall/internal/domain/model"
)

// Gallery provides read/write access to enrolled identities.
type Gallery interface {
	// Upsert stores identity, replacing any descriptor it already had.
	// An identity with ID 0 is assigned the next id.
	Upsert(ctx context.Context, identity model.Identity) (model.Identity, error)

	// Replace updates an identity that is currently enrolled. It never
	// creates one; an unknown or removed id returns ErrNotFound.
	Replace(ctx context.Context, identity model.Identity) (model.Identity, error)

	// Remove deletes an identity. Returns ErrNotFound if it is unknown.
	Remove(ctx context.Context, id int64) error

	// Get returns one identity. Returns ErrNotFound if it is unknown.
	Get(ctx context.Context, id int64) (model.Identity, error)

	// List returns every identity ordered by id.
	List(ctx context.Context) []model.Identity

	// AllEntries returns a point-in-time view of every descriptor for matching.
	// The returned slice and descriptors must not be modified.
	AllEntries(ctx context.Context) []model.Entry

	// Count returns the number of enrolled identities.
	Count(ctx context.Context) int

	// Restore bulk-loads identities and advances the id counter past lastIssued.
	Restore(ctx context.Context, identities []model.Identity, lastIssued int64) error
}
