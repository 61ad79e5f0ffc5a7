package domain

import "time"

// Category classifies a deny-list entry.
type Category string

const (
	// CategoryToken bans a token address (or, for legacy entries, a display name).
	CategoryToken Category = "token"

	// CategoryDeveloper bans a developer address.
	CategoryDeveloper Category = "developer"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	return c == CategoryToken || c == CategoryDeveloper
}

// DenyListEntry is a banned address. Address is unique across both categories:
// an address carries exactly one category, and re-listing it under another
// category requires an explicit delete+insert by an operator.
type DenyListEntry struct {
	Address  string    `json:"address"`
	Category Category  `json:"category"`
	Reason   string    `json:"reason"`
	ListedAt time.Time `json:"listed_at"`
}
