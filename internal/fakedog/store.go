package fakedog

import (
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned for unknown monitor ids.
var ErrNotFound = errors.New("monitor not found")

const fakeCreator = "dogpush-tests@example.com"

// Store is an in-memory monitor table that fills in server-side fields the
// way the real service does.
type Store struct {
	mu       sync.Mutex
	monitors map[int64]map[string]any
	order    []int64
	nextID   int64
	now      func() time.Time
}

// NewStore returns an empty store. Ids start at 1000.
func NewStore(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		monitors: make(map[int64]map[string]any),
		nextID:   1000,
		now:      now,
	}
}

// Create stores body as a new monitor and returns the stored record.
func (s *Store) Create(body map[string]any) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	stamp := s.now().UTC().Format(time.RFC3339Nano)

	m := deepCopy(body)
	m["id"] = id
	m["created"] = stamp
	m["modified"] = stamp
	m["creator"] = map[string]any{"email": fakeCreator, "handle": fakeCreator, "id": 1}
	m["org_id"] = 1
	m["overall_state"] = "No Data"
	m["deleted"] = nil
	fillDefaults(m, nil)

	s.monitors[id] = m
	s.order = append(s.order, id)
	return deepCopy(m)
}

// Update replaces the user-controlled fields of monitor id with body.
func (s *Store) Update(id int64, body map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.monitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	m := deepCopy(body)
	for _, field := range []string{"id", "created", "creator", "org_id", "overall_state", "deleted"} {
		m[field] = old[field]
	}
	m["modified"] = s.now().UTC().Format(time.RFC3339Nano)
	oldOpts, _ := old["options"].(map[string]any)
	fillDefaults(m, oldOpts)

	s.monitors[id] = m
	return deepCopy(m), nil
}

// Delete removes monitor id.
func (s *Store) Delete(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.monitors[id]; !ok {
		return ErrNotFound
	}
	delete(s.monitors, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Mute silences every scope of monitor id until end.
func (s *Store) Mute(id int64, end int64) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	opts, _ := m["options"].(map[string]any)
	opts["silenced"] = map[string]any{"*": end}
	return deepCopy(m), nil
}

// Get returns a copy of monitor id.
func (s *Store) Get(id int64) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.monitors[id]
	if !ok {
		return nil, false
	}
	return deepCopy(m), true
}

// List returns copies of every monitor in creation order.
func (s *Store) List() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]map[string]any, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, deepCopy(s.monitors[id]))
	}
	return out
}

// Len returns the number of stored monitors.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// fillDefaults adds the option and rule values the service always reports.
// A silencing state from prev survives an update that does not mention it.
func fillDefaults(m map[string]any, prev map[string]any) {
	opts, _ := m["options"].(map[string]any)
	if opts == nil {
		opts = map[string]any{}
		m["options"] = opts
	}
	if _, ok := opts["notify_audit"]; !ok {
		opts["notify_audit"] = false
	}
	if _, ok := opts["locked"]; !ok {
		opts["locked"] = false
	}
	if _, ok := opts["silenced"]; !ok {
		if silenced, had := prev["silenced"]; had {
			opts["silenced"] = silenced
		} else {
			opts["silenced"] = map[string]any{}
		}
	}
	if _, ok := m["multi"]; !ok {
		m["multi"] = false
	}
}

// deepCopy round-trips through JSON, which is the representation served anyway.
func deepCopy(m map[string]any) map[string]any {
	data, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		panic(err)
	}
	return out
}
