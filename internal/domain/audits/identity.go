package audits

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Identity is either a client-generated id for an audit that was never stored,
// or the id of the persisted row.
type Identity struct {
	id        string
	persisted bool
}

// NewEphemeral generates a fresh client-side identity.
func NewEphemeral() Identity {
	return Identity{id: uuid.New().String()}
}

// Ephemeral wraps an existing client id.
func Ephemeral(clientID string) Identity {
	return Identity{id: clientID}
}

// Persisted wraps a stored row id.
func Persisted(rowID string) Identity {
	return Identity{id: rowID, persisted: true}
}

func (i Identity) String() string { return i.id }

// IsPersisted reports whether the id refers to a stored row.
func (i Identity) IsPersisted() bool { return i.persisted }

func (i Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.id)
}
