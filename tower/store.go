package tower

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const estimateSchema = `
CREATE TABLE IF NOT EXISTS tower_estimates (
	estimate_id  TEXT PRIMARY KEY,
	tower_id     TEXT NOT NULL,
	method       TEXT NOT NULL,
	lat          REAL NOT NULL,
	lon          REAL NOT NULL,
	radius       REAL NOT NULL,
	circles      INTEGER NOT NULL,
	points       INTEGER NOT NULL,
	raw_points   INTEGER NOT NULL,
	evaluated    INTEGER NOT NULL,
	duration_ns  INTEGER NOT NULL,
	params_json  TEXT,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tower_estimates_tower ON tower_estimates (tower_id, created_at DESC);
`

// EstimateRecord is a persisted estimate
type EstimateRecord struct {
	EstimateID string          `json:"estimateId"`
	TowerID    string          `json:"towerId"`
	Method     Method          `json:"method"`
	Lat        float64         `json:"lat"`
	Lon        float64         `json:"lon"`
	Radius     float64         `json:"radius"`
	Circles    int             `json:"circles"`
	Points     int             `json:"points"`
	RawPoints  int             `json:"rawPoints"`
	Evaluated  int64           `json:"evaluated"`
	Duration   time.Duration   `json:"duration"`
	ParamsJSON json.RawMessage `json:"params,omitempty"`
	CreatedAt  int64           `json:"createdAt"` // unix nanoseconds
}

// EstimateStore keeps the history of tower estimates in SQLite
type EstimateStore struct {
	db *sql.DB
}

// OpenEstimateStore opens (creating if needed) the estimate database at path.
// An empty path or ":memory:" opens a private in-memory database.
func OpenEstimateStore(path string) (*EstimateStore, error) {
	memory := path == "" || path == ":memory:"
	if memory {
		path = ":memory:"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening estimate database: %w", err)
	}
	if memory {
		// Each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(estimateSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating estimate schema: %w", err)
	}
	return &EstimateStore{db: db}, nil
}

// Close closes the database
func (s *EstimateStore) Close() error {
	return s.db.Close()
}

// NewEstimateRecord builds a record from a finished run
func NewEstimateRecord(res *Result, params EstimatorConfig) (*EstimateRecord, error) {
	if res == nil || res.Estimate == nil {
		return nil, fmt.Errorf("result has no estimate")
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling estimator params: %w", err)
	}
	return &EstimateRecord{
		TowerID:    res.TowerID,
		Method:     res.Method,
		Lat:        res.Estimate.Center.Lat,
		Lon:        res.Estimate.Center.Lon,
		Radius:     res.Estimate.Radius,
		Circles:    res.Estimate.Count,
		Points:     len(res.Points),
		RawPoints:  res.RawCount,
		Evaluated:  res.Evaluated,
		Duration:   res.Duration,
		ParamsJSON: paramsJSON,
	}, nil
}

// Record persists an estimate. If EstimateID is empty, a UUID is generated.
func (s *EstimateStore) Record(ctx context.Context, rec *EstimateRecord) error {
	if rec.TowerID == "" {
		return fmt.Errorf("estimate record needs a tower ID")
	}
	if rec.EstimateID == "" {
		rec.EstimateID = uuid.New().String()
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixNano()
	}

	var params interface{}
	if len(rec.ParamsJSON) > 0 {
		params = string(rec.ParamsJSON)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tower_estimates (
			estimate_id, tower_id, method, lat, lon, radius, circles, points,
			raw_points, evaluated, duration_ns, params_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EstimateID, rec.TowerID, string(rec.Method), rec.Lat, rec.Lon, rec.Radius,
		rec.Circles, rec.Points, rec.RawPoints, rec.Evaluated, int64(rec.Duration),
		params, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert estimate: %w", err)
	}
	return nil
}

const selectEstimate = `
	SELECT estimate_id, tower_id, method, lat, lon, radius, circles, points,
	       raw_points, evaluated, duration_ns, params_json, created_at
	FROM tower_estimates`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEstimate(row rowScanner) (*EstimateRecord, error) {
	var (
		rec      EstimateRecord
		method   string
		duration int64
		params   sql.NullString
	)
	err := row.Scan(
		&rec.EstimateID, &rec.TowerID, &method, &rec.Lat, &rec.Lon, &rec.Radius,
		&rec.Circles, &rec.Points, &rec.RawPoints, &rec.Evaluated, &duration,
		&params, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Method = Method(method)
	rec.Duration = time.Duration(duration)
	if params.Valid {
		rec.ParamsJSON = json.RawMessage(params.String)
	}
	return &rec, nil
}

// History returns up to limit estimates for a tower, newest first.
// A non-positive limit returns every record.
func (s *EstimateStore) History(ctx context.Context, towerID string, limit int) ([]*EstimateRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(ctx, selectEstimate+`
		WHERE tower_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, towerID, limit)
	if err != nil {
		return nil, fmt.Errorf("query estimates: %w", err)
	}
	defer rows.Close()

	var out []*EstimateRecord
	for rows.Next() {
		rec, err := scanEstimate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan estimate: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Latest returns the newest estimate for a tower, or ErrNoHistory
func (s *EstimateStore) Latest(ctx context.Context, towerID string) (*EstimateRecord, error) {
	row := s.db.QueryRowContext(ctx, selectEstimate+`
		WHERE tower_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, towerID)

	rec, err := scanEstimate(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tower %s: %w", towerID, ErrNoHistory)
		}
		return nil, fmt.Errorf("scan estimate: %w", err)
	}
	return rec, nil
}

// Towers returns the IDs of every tower with stored estimates
func (s *EstimateStore) Towers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tower_id FROM tower_estimates ORDER BY tower_id`)
	if err != nil {
		return nil, fmt.Errorf("query towers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tower: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
