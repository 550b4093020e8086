package tower

import (
	"slices"
	"sync"
	"time"
)

// TowerState is a snapshot of one tower's observations
type TowerState struct {
	TowerID      string    `json:"towerId"`
	Name         string    `json:"name,omitempty"`
	Color        string    `json:"color"`
	Observations int       `json:"observations"`
	Pending      int       `json:"pending"`
	LastSeen     time.Time `json:"lastSeen"`
	Estimate     *Estimate `json:"estimate,omitempty"`
	EstimatedAt  time.Time `json:"estimatedAt,omitempty"`
	LastError    string    `json:"lastError,omitempty"`
}

// defaultTowerColor is used for towers without a configured color
const defaultTowerColor = "#1F77B4"

type towerEntry struct {
	raw         []Point
	pending     int
	lastSeen    time.Time
	running     bool
	result      *Result
	stored      *Estimate // restored from the estimate store
	estimatedAt time.Time
	lastErr     string
}

// StateTracker tracks hand-off fixes and estimates per tower for the service
// loop and HTTP endpoints
type StateTracker struct {
	mu     sync.RWMutex
	towers map[string]*towerEntry
	colors map[string]string // tower ID -> hex color
	names  map[string]string
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		towers: make(map[string]*towerEntry),
		colors: make(map[string]string),
		names:  make(map[string]string),
	}
}

// Configure applies display names and colors from the config file
func (st *StateTracker) Configure(towers []TowerConfig) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, tc := range towers {
		if tc.Color != "" {
			st.colors[tc.ID] = tc.Color
		}
		if tc.Name != "" {
			st.names[tc.ID] = tc.Name
		}
	}
}

// Color returns the configured color for a tower
func (st *StateTracker) Color(towerID string) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if c := st.colors[towerID]; c != "" {
		return c
	}
	return defaultTowerColor
}

func (st *StateTracker) entry(towerID string) *towerEntry {
	e, ok := st.towers[towerID]
	if !ok {
		e = &towerEntry{}
		st.towers[towerID] = e
	}
	return e
}

// AddObservations appends fixes for a tower and returns its pending count,
// the number of fixes received since the last estimate started
func (st *StateTracker) AddObservations(towerID string, points ...Point) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.entry(towerID)
	e.raw = append(e.raw, points...)
	e.pending += len(points)
	e.lastSeen = time.Now()
	return e.pending
}

// BeginEstimate claims the tower for an estimate run. It returns a copy of
// the raw fixes and true, or false when a run is already in flight.
func (st *StateTracker) BeginEstimate(towerID string) ([]Point, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	e, ok := st.towers[towerID]
	if !ok || e.running {
		return nil, false
	}
	e.running = true
	e.pending = 0
	return slices.Clone(e.raw), true
}

// FinishEstimate releases the tower and records the outcome of a run. A
// partial result returned alongside an error is kept for rendering only until
// the tower has a successful one.
func (st *StateTracker) FinishEstimate(towerID string, res *Result, err error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.entry(towerID)
	e.running = false
	if res != nil && (err == nil || e.result == nil || e.result.Estimate == nil) {
		e.result = res
	}
	if err != nil {
		e.lastErr = err.Error()
		return
	}
	e.lastErr = ""
	e.estimatedAt = time.Now()
}

// Pending returns the number of fixes received since the last run started
func (st *StateTracker) Pending(towerID string) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if e, ok := st.towers[towerID]; ok {
		return e.pending
	}
	return 0
}

// Observations returns a copy of a tower's raw fixes
func (st *StateTracker) Observations(towerID string) []Point {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if e, ok := st.towers[towerID]; ok {
		return slices.Clone(e.raw)
	}
	return nil
}
// Restore seeds a tower with an estimate recorded before a restart. It is
// reported until the tower has a result of its own.
func (st *StateTracker) Restore(rec *EstimateRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()

	e := st.entry(rec.TowerID)
	e.stored = &Estimate{
		Center: Point{Lat: rec.Lat, Lon: rec.Lon},
		Radius: rec.Radius,
		Count:  rec.Circles,
	}
	if e.result == nil || e.result.Estimate == nil {
		e.estimatedAt = time.Unix(0, rec.CreatedAt)
	}
}

// Result returns the last result computed for a tower
func (st *StateTracker) Result(towerID string) (*Result, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.towers[towerID]
	if !ok || e.result == nil {
		return nil, false
	}
	return e.result, true
}

// Snapshot returns the state of one tower
func (st *StateTracker) Snapshot(towerID string) (TowerState, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	e, ok := st.towers[towerID]
	if !ok {
		return TowerState{}, false
	}
	return st.snapshotLocked(towerID, e), true
}

// Towers returns the state of every tower, ordered by ID
func (st *StateTracker) Towers() []TowerState {
	st.mu.RLock()
	defer st.mu.RUnlock()

	ids := make([]string, 0, len(st.towers))
	for id := range st.towers {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	out := make([]TowerState, 0, len(ids))
	for _, id := range ids {
		out = append(out, st.snapshotLocked(id, st.towers[id]))
	}
	return out
}

func (st *StateTracker) snapshotLocked(id string, e *towerEntry) TowerState {
	color := st.colors[id]
	if color == "" {
		color = defaultTowerColor
	}
	s := TowerState{
		TowerID:      id,
		Name:         st.names[id],
		Color:        color,
		Observations: len(e.raw),
		Pending:      e.pending,
		LastSeen:     e.lastSeen,
		EstimatedAt:  e.estimatedAt,
		LastError:    e.lastErr,
	}
	switch {
	case e.result != nil && e.result.Estimate != nil:
		est := *e.result.Estimate
		s.Estimate = &est
	case e.stored != nil:
		est := *e.stored
		s.Estimate = &est
	}
	return s
}
