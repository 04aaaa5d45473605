package domain

import (
	"time"

	"github.com/google/uuid"
)

// Person is a managed-person record: someone the diary's author writes
// about, extracted from or attached to journal entries. Creating one is
// a metered action (CounterPeopleManaged).
type Person struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	Name      string    `json:"name"`
	Relation  string    `json:"relation,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreatePersonParams contains the validated parameters for creating a person.
type CreatePersonParams struct {
	UserID   uuid.UUID
	Name     string
	Relation string
	Notes    string
}
