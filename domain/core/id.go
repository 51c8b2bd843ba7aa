package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// OutlierID identifies a published verdict
type OutlierID ID

func (id OutlierID) String() string { return ID(id).String() }

// NewOutlierID creates a time-ordered outlier identifier
func NewOutlierID() OutlierID {
	return OutlierID(NewID())
}

// ParseOutlierID parses a string into OutlierID
func ParseOutlierID(s string) (OutlierID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("outlier ID cannot be empty")
	}
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("outlier ID %q is not a UUID: %w", s, err)
	}
	return OutlierID(s), nil
}
