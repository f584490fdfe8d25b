package models

// Item is a catalog entry for a reservable piece of equipment.
// Reservations reference items by Name.
type Item struct {
	Slug        string `yaml:"slug" json:"slug"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	SortOrder   int64  `yaml:"sort_order" json:"sort_order"`
}
