package health

import (
	"encoding/json"
	"time"
)

// Status represents the health state of an item.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Category groups health items.
type Category string

const (
	CategoryDatabase Category = "database"
	CategoryCache    Category = "cache"
	CategoryTelegram Category = "telegram"
)

// AllCategories returns all health categories in display order.
func AllCategories() []Category {
	return []Category{
		CategoryDatabase,
		CategoryCache,
		CategoryTelegram,
	}
}

// Item represents a single health-tracked component.
type Item struct {
	ID        string     `json:"id"`
	Category  Category   `json:"category"`
	Name      string     `json:"name"`
	Status    Status     `json:"status"`
	Message   string     `json:"message,omitempty"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MarshalJSON omits the timestamp and message for OK items.
func (h Item) MarshalJSON() ([]byte, error) {
	type Alias Item
	alias := Alias(h)

	if h.Status == StatusOK {
		alias.Timestamp = nil
		alias.Message = ""
	}

	return json.Marshal(alias)
}

// Summary is the overview served to admins.
type Summary struct {
	Items     []Item `json:"items"`
	HasIssues bool   `json:"hasIssues"`
}
