// Package health tracks the state of the services the bot depends on and
// tells admins when one goes down or recovers.
package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Notifier receives status transitions.
type Notifier interface {
	DispatchHealthIssue(ctx context.Context, source, level, message string)
	DispatchHealthRestored(ctx context.Context, source string)
}

// CheckFunc checks a component. A nil error means healthy.
type CheckFunc func(ctx context.Context) error

const checkTimeout = 10 * time.Second

type check struct {
	category Category
	id       string
	fn       CheckFunc
}

// Service manages the health state of all tracked items.
// All state is in-memory and resets on application restart.
type Service struct {
	items    map[Category]map[string]*Item
	checks   []check
	mu       sync.RWMutex
	notifier Notifier
	logger   zerolog.Logger
}

// NewService creates a new health service.
func NewService(logger zerolog.Logger) *Service {
	s := &Service{
		items:  make(map[Category]map[string]*Item),
		logger: logger.With().Str("component", "health").Logger(),
	}
	for _, cat := range AllCategories() {
		s.items[cat] = make(map[string]*Item)
	}
	return s
}

// SetNotifier sets the receiver for health alerts.
func (s *Service) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// RegisterItem adds a new item to health tracking with OK status.
func (s *Service) RegisterItem(category Category, id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.items[category] == nil {
		s.items[category] = make(map[string]*Item)
	}
	s.items[category][id] = &Item{
		ID:       id,
		Category: category,
		Name:     name,
		Status:   StatusOK,
	}

	s.logger.Debug().
		Str("category", string(category)).
		Str("id", id).
		Msg("Registered health item")
}

// AddCheck registers an item together with the check RunChecks runs for it.
func (s *Service) AddCheck(category Category, id, name string, fn CheckFunc) {
	s.RegisterItem(category, id, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check{category: category, id: id, fn: fn})
}

// SetError sets an item to Error status with a message.
func (s *Service) SetError(category Category, id, message string) {
	s.setStatus(category, id, StatusError, message)
}

// SetWarning sets an item to Warning status with a message.
func (s *Service) SetWarning(category Category, id, message string) {
	s.setStatus(category, id, StatusWarning, message)
}

// ClearStatus resets an item to OK status.
func (s *Service) ClearStatus(category Category, id string) {
	s.setStatus(category, id, StatusOK, "")
}

func (s *Service) setStatus(category Category, id string, status Status, message string) {
	s.mu.Lock()

	item, exists := s.items[category][id]
	if !exists {
		s.mu.Unlock()
		s.logger.Warn().
			Str("category", string(category)).
			Str("id", id).
			Msg("Attempted to update status for unregistered item")
		return
	}

	if item.Status == status && item.Message == message {
		s.mu.Unlock()
		return
	}

	oldStatus := item.Status
	item.Status = status
	item.Message = message
	name := item.Name

	if status != StatusOK {
		now := time.Now()
		item.Timestamp = &now
	} else {
		item.Timestamp = nil
	}
	notifier := s.notifier
	s.mu.Unlock()

	event := s.logger.Info()
	if status == StatusError {
		event = s.logger.Warn()
	}
	event.
		Str("category", string(category)).
		Str("id", id).
		Str("oldStatus", string(oldStatus)).
		Str("newStatus", string(status)).
		Str("message", message).
		Msg("Health status changed")

	if notifier == nil {
		return
	}

	// Only transitions into or out of OK are reported; warning to error is not.
	source := string(category) + ": " + name
	switch {
	case oldStatus == StatusOK:
		notifier.DispatchHealthIssue(context.Background(), source, string(status), message)
	case status == StatusOK:
		notifier.DispatchHealthRestored(context.Background(), source)
	}
}

// RunChecks runs every registered check and records the outcome.
func (s *Service) RunChecks(ctx context.Context) error {
	s.mu.RLock()
	checks := make([]check, len(s.checks))
	copy(checks, s.checks)
	s.mu.RUnlock()

	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			return err
		}

		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.fn(checkCtx)
		cancel()

		if err != nil {
			s.SetError(c.category, c.id, err.Error())
			continue
		}
		s.ClearStatus(c.category, c.id)
	}
	return nil
}

// GetItem returns a copy of a single item, or nil.
func (s *Service) GetItem(category Category, id string) *Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, exists := s.items[category][id]; exists {
		c := *item
		return &c
	}
	return nil
}

// IsHealthy returns true if the specified item is OK.
func (s *Service) IsHealthy(category Category, id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if item, exists := s.items[category][id]; exists {
		return item.Status == StatusOK
	}
	return false
}

// GetSummary returns every item in category order, then by id.
func (s *Service) GetSummary() *Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{Items: []Item{}}
	for _, cat := range AllCategories() {
		start := len(summary.Items)
		for _, item := range s.items[cat] {
			summary.Items = append(summary.Items, *item)
			if item.Status != StatusOK {
				summary.HasIssues = true
			}
		}
		group := summary.Items[start:]
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
	}
	return summary
}
