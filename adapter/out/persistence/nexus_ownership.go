package persistence

import (
	"github.com/google/uuid"

	"nexus_server/pkg/apperr"
)

// missingRowErr maps a zero-row user-scoped write to the right error.
// A row that exists under another owner is an authorization failure;
// only a truly absent row is not found. lookupErr is the result of the
// follow-up owner select; any lookup failure degrades to not found.
func missingRowErr(owner uuid.UUID, lookupErr error, userID uuid.UUID, resource string) error {
	if lookupErr == nil && owner != userID {
		return apperr.Forbidden("")
	}
	return apperr.NotFound(resource)
}
