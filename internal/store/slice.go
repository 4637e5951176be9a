package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Policy selects which fields of a slice reach durable storage.
type Policy int

const (
	// PersistNone keeps the slice purely in memory.
	PersistNone Policy = iota
	// PersistAll writes the whole state on every covered change.
	PersistAll
	// PersistFields writes only an explicit allow-list of JSON field names;
	// un-listed fields always come from the static default, never storage.
	PersistFields
)

// persistedPayload is the durable document shape: {"state": {...}} under the
// key "store-{slice}".
type persistedPayload struct {
	State json.RawMessage `json:"state"`
}

// Slice is one named, independently-owned region of application state. Reads
// come in two flavors: Get for point-in-time snapshots and Subscribe for
// change notification. Mutation happens only through partial-merge setters.
type Slice[T any] struct {
	name    string
	policy  Policy
	fields  map[string]struct{}
	storage Storage
	logger  *slog.Logger

	mu      sync.RWMutex
	state   T
	def     T
	subs    map[int]func(T)
	nextSub int
}

type sliceSettings struct {
	policy Policy
	fields []string
}

// Option configures slice construction.
type Option func(*sliceSettings)

// PersistAllFields opts the slice into whole-state persistence.
func PersistAllFields() Option {
	return func(s *sliceSettings) { s.policy = PersistAll }
}

// PersistFieldList opts the slice into allow-list persistence for the named
// JSON fields.
func PersistFieldList(fields ...string) Option {
	return func(s *sliceSettings) {
		s.policy = PersistFields
		s.fields = fields
	}
}

// NewSlice builds a slice named name, seeded from def merged with any durable
// snapshot permitted by the persistence policy. Storage failures during
// hydration are logged and leave the default in place.
func NewSlice[T any](name string, def T, storage Storage, logger *slog.Logger, opts ...Option) *Slice[T] {
	settings := sliceSettings{policy: PersistNone}
	for _, opt := range opts {
		opt(&settings)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Slice[T]{
		name:    name,
		policy:  settings.policy,
		storage: storage,
		logger:  logger.With(slog.String("slice", name)),
		state:   def,
		def:     def,
		subs:    make(map[int]func(T)),
	}
	if len(settings.fields) > 0 {
		s.fields = make(map[string]struct{}, len(settings.fields))
		for _, field := range settings.fields {
			s.fields[field] = struct{}{}
		}
	}
	s.hydrate()
	return s
}

// Name returns the slice name.
func (s *Slice[T]) Name() string { return s.name }

// StorageKey returns the durable storage key for the slice.
func (s *Slice[T]) StorageKey() string { return "store-" + s.name }

// Get returns a point-in-time snapshot without subscribing.
func (s *Slice[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set shallow-merges the given fields into the state, re-persists the covered
// subset, then notifies subscribers. The in-memory state stays authoritative
// even when persistence fails; only a malformed partial returns an error.
func (s *Slice[T]) Set(partial map[string]any) error {
	if len(partial) == 0 {
		return nil
	}
	fields := make(map[string]json.RawMessage, len(partial))
	for key, value := range partial {
		raw, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("store: encode field %q: %w", key, err)
		}
		fields[key] = raw
	}

	s.mu.Lock()
	next, err := mergeFields(s.state, fields)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("store: merge %s: %w", s.name, err)
	}
	s.state = next
	covered := s.coversAny(fields)
	snapshot := s.state
	s.mu.Unlock()

	if covered {
		s.persist(snapshot)
	}
	s.notify(snapshot)
	return nil
}

// Update applies a typed mutation, persists, and notifies. It exists for call
// sites that maintain invariants across several fields at once.
func (s *Slice[T]) Update(mutate func(*T)) {
	s.mu.Lock()
	mutate(&s.state)
	snapshot := s.state
	s.mu.Unlock()

	if s.policy != PersistNone {
		s.persist(snapshot)
	}
	s.notify(snapshot)
}

// Reset restores the static default and removes the durable snapshot.
func (s *Slice[T]) Reset() {
	s.mu.Lock()
	s.state = s.def
	snapshot := s.state
	s.mu.Unlock()

	if s.policy != PersistNone && s.storage != nil {
		if err := s.storage.Delete(s.StorageKey()); err != nil {
			s.logger.Warn("storage delete failed", slog.Any("error", err))
		}
	}
	s.notify(snapshot)
}

// Subscribe registers fn for change notification and returns a cancel func.
// Notifications run synchronously in call order on the mutating goroutine.
func (s *Slice[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Slice[T]) hydrate() {
	if s.policy == PersistNone || s.storage == nil {
		return
	}
	data, ok, err := s.storage.Load(s.StorageKey())
	if err != nil {
		s.logger.Warn("storage load failed", slog.Any("error", err))
		return
	}
	if !ok {
		return
	}
	var payload persistedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		s.logger.Warn("corrupt durable snapshot ignored", slog.Any("error", err))
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload.State, &fields); err != nil {
		s.logger.Warn("corrupt durable state ignored", slog.Any("error", err))
		return
	}
	if s.policy == PersistFields {
		for key := range fields {
			if _, allowed := s.fields[key]; !allowed {
				delete(fields, key)
			}
		}
	}
	next, err := mergeFields(s.def, fields)
	if err != nil {
		s.logger.Warn("durable snapshot did not decode", slog.Any("error", err))
		return
	}
	s.state = next
}

// persist re-serializes the entire persisted subset synchronously. There is no
// debouncing or batching; failures are logged and swallowed.
func (s *Slice[T]) persist(state T) {
	if s.storage == nil {
		return
	}
	raw, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("state serialization failed", slog.Any("error", err))
		return
	}
	subset := raw
	if s.policy == PersistFields {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			s.logger.Warn("state field scan failed", slog.Any("error", err))
			return
		}
		for key := range fields {
			if _, allowed := s.fields[key]; !allowed {
				delete(fields, key)
			}
		}
		subset, err = json.Marshal(fields)
		if err != nil {
			s.logger.Warn("state subset serialization failed", slog.Any("error", err))
			return
		}
	}
	payload, err := json.Marshal(persistedPayload{State: subset})
	if err != nil {
		s.logger.Warn("payload serialization failed", slog.Any("error", err))
		return
	}
	if err := s.storage.Save(s.StorageKey(), payload); err != nil {
		s.logger.Warn("storage save failed", slog.Any("error", err))
	}
}

func (s *Slice[T]) notify(state T) {
	s.mu.RLock()
	fns := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(state)
	}
}

func (s *Slice[T]) coversAny(fields map[string]json.RawMessage) bool {
	switch s.policy {
	case PersistAll:
		return true
	case PersistFields:
		for key := range fields {
			if _, ok := s.fields[key]; ok {
				return true
			}
		}
	}
	return false
}

// mergeFields shallow-merges raw JSON fields onto base through a map
// round-trip, yielding a new typed value.
func mergeFields[T any](base T, fields map[string]json.RawMessage) (T, error) {
	var out T
	baseRaw, err := json.Marshal(base)
	if err != nil {
		return out, err
	}
	merged := make(map[string]json.RawMessage)
	if err := json.Unmarshal(baseRaw, &merged); err != nil {
		return out, err
	}
	for key, value := range fields {
		merged[key] = value
	}
	mergedRaw, err := json.Marshal(merged)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(mergedRaw, &out); err != nil {
		return out, err
	}
	return out, nil
}
