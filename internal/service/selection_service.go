package service

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/tazhate/calbridge/internal/domain"
	"github.com/tazhate/calbridge/internal/storage"
)

const (
	selectedCalendarsKey = "SelectedCalendars"
	addedEventsKey       = "AddedEvent"
)

// SelectionService persists the user's chosen calendars and the log of created events.
// Encode/decode failures are logged and the operation is skipped.
type SelectionService struct {
	kv     storage.KV
	logger *zap.Logger
	mu     sync.Mutex
}

// NewSelectionService creates a new selection service
func NewSelectionService(kv storage.KV, logger *zap.Logger) *SelectionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SelectionService{kv: kv, logger: logger}
}

// List returns stored selections in insertion order. Read failures yield an empty list.
func (s *SelectionService) List(ctx context.Context) []domain.CalendarSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Add stores one selection unless its identifier is already present
func (s *SelectionService) Add(ctx context.Context, sel domain.CalendarSelection) {
	s.AddMany(ctx, []domain.CalendarSelection{sel})
}

// AddMany appends selections whose identifiers are not yet stored
func (s *SelectionService) AddMany(ctx context.Context, sels []domain.CalendarSelection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load(ctx)
	seen := make(map[string]bool, len(existing)+len(sels))
	for _, e := range existing {
		seen[e.Identifier] = true
	}

	added := 0
	for _, sel := range sels {
		if seen[sel.Identifier] {
			s.logger.Debug("selection already stored", zap.String("calendar_id", sel.Identifier))
			continue
		}
		seen[sel.Identifier] = true
		sel.IsSelected = true
		existing = append(existing, sel)
		added++
	}
	if added == 0 {
		return
	}
	s.save(ctx, existing)
}

// Remove deletes the selection with the given identifier; missing identifiers are a no-op
func (s *SelectionService) Remove(ctx context.Context, identifier string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load(ctx)
	kept := existing[:0]
	for _, e := range existing {
		if e.Identifier != identifier {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(existing) {
		return
	}
	s.save(ctx, kept)
}

// Toggle adds the selection if absent and removes it otherwise. Returns the new state.
func (s *SelectionService) Toggle(ctx context.Context, sel domain.CalendarSelection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.load(ctx)
	for i, e := range existing {
		if e.Identifier == sel.Identifier {
			s.save(ctx, append(existing[:i], existing[i+1:]...))
			return false
		}
	}
	sel.IsSelected = true
	s.save(ctx, append(existing, sel))
	return true
}

// Contains reports whether the identifier is stored
func (s *SelectionService) Contains(ctx context.Context, identifier string) bool {
	for _, e := range s.List(ctx) {
		if e.Identifier == identifier {
			return true
		}
	}
	return false
}

// Clear removes all selections
func (s *SelectionService) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, selectedCalendarsKey); err != nil {
		s.logger.Warn("clear selections failed", zap.Error(err))
		return
	}
	s.logger.Info("all calendar selections removed")
}

// RecordCreatedEvent appends an event identifier to the created-event log
func (s *SelectionService) RecordCreatedEvent(ctx context.Context, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.loadCreated(ctx)
	ids = append(ids, eventID)
	data, err := json.Marshal(ids)
	if err != nil {
		s.logger.Warn("encode created events failed", zap.Error(serializationError(err)))
		return
	}
	if err := s.kv.Set(ctx, addedEventsKey, data); err != nil {
		s.logger.Warn("store created events failed", zap.Error(err))
	}
}

// CreatedEvents returns the logged event identifiers
func (s *SelectionService) CreatedEvents(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadCreated(ctx)
}

func (s *SelectionService) loadCreated(ctx context.Context) []string {
	data, err := s.kv.Get(ctx, addedEventsKey)
	if err != nil {
		s.logger.Warn("read created events failed", zap.Error(err))
		return nil
	}
	if data == nil {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		s.logger.Warn("decode created events failed", zap.Error(serializationError(err)))
		return nil
	}
	return ids
}

func (s *SelectionService) load(ctx context.Context) []domain.CalendarSelection {
	data, err := s.kv.Get(ctx, selectedCalendarsKey)
	if err != nil {
		s.logger.Warn("read selections failed", zap.Error(err))
		return []domain.CalendarSelection{}
	}
	if data == nil {
		return []domain.CalendarSelection{}
	}

	var sels []domain.CalendarSelection
	if err := json.Unmarshal(data, &sels); err != nil {
		s.logger.Warn("decode selections failed", zap.Error(serializationError(err)))
		return []domain.CalendarSelection{}
	}
	return sels
}

func (s *SelectionService) save(ctx context.Context, sels []domain.CalendarSelection) {
	data, err := json.Marshal(sels)
	if err != nil {
		s.logger.Warn("encode selections failed", zap.Error(serializationError(err)))
		return
	}
	if err := s.kv.Set(ctx, selectedCalendarsKey, data); err != nil {
		s.logger.Warn("store selections failed", zap.Error(err))
		return
	}
	s.logger.Debug("selections saved", zap.Int("count", len(sels)))
}

func serializationError(err error) error {
	return domain.WrapError(err, domain.ErrSerialization.Code, domain.ErrSerialization.Message)
}
