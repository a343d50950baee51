// Package history persists trigger evaluations and bump runs in SQLite so
// that operators can audit what the watch loop decided and did.
package history

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mseaborn/nacl-dev-tools/internal/domain"
)

// Store provides SQLite-backed history
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (creating if needed) the database at dbPath. ":memory:" gives
// a private in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordEvaluation inserts ev and sets its ID
func (s *Store) RecordEvaluation(ev *domain.Evaluation) error {
	reasons, err := json.Marshal(ev.Reasons)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		INSERT INTO evaluations (profile, evaluated_at, last_attempted, newest, age_ns, stable_marker, last_manifest_change, provisional, build, reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ev.Profile,
		ev.EvaluatedAt,
		ev.LastAttempted,
		ev.Newest,
		int64(ev.Age),
		ev.StableMarker,
		ev.LastManifestChange,
		ev.Provisional,
		ev.Build,
		string(reasons),
	)
	if err != nil {
		return fmt.Errorf("recording evaluation: %w", err)
	}
	ev.ID, err = res.LastInsertId()
	return err
}

// ListOptions specifies filters for listing history
type ListOptions struct {
	Profile string
	// Limit caps the number of rows, newest first. Zero means no limit.
	Limit int
}

func (o ListOptions) apply(query string, orderBy string) (string, []interface{}) {
	var args []interface{}
	query += " WHERE 1=1"
	if o.Profile != "" {
		query += " AND profile = ?"
		args = append(args, o.Profile)
	}
	query += " ORDER BY " + orderBy + " DESC"
	if o.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, o.Limit)
	}
	return query, args
}

// ListEvaluations returns evaluations, newest first
func (s *Store) ListEvaluations(opts ListOptions) ([]domain.Evaluation, error) {
	query, args := opts.apply(`SELECT id, profile, evaluated_at, last_attempted, newest, age_ns, stable_marker, last_manifest_change, provisional, build, reasons FROM evaluations`, "evaluated_at DESC, id")

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evs []domain.Evaluation
	for rows.Next() {
		var ev domain.Evaluation
		var ageNs int64
		var reasons sql.NullString
		err := rows.Scan(&ev.ID, &ev.Profile, &ev.EvaluatedAt, &ev.LastAttempted, &ev.Newest, &ageNs,
			&ev.StableMarker, &ev.LastManifestChange, &ev.Provisional, &ev.Build, &reasons)
		if err != nil {
			return nil, err
		}
		ev.Age = time.Duration(ageNs)
		if reasons.Valid && reasons.String != "" && reasons.String != "null" {
			if err := json.Unmarshal([]byte(reasons.String), &ev.Reasons); err != nil {
				return nil, err
			}
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

// StartRun inserts run with status running. An empty ID is filled with a
// new UUID.
func (s *Store) StartRun(run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	now := s.now()
	run.StartedAt = &now
	run.Status = domain.RunRunning

	_, err := s.db.Exec(`
		INSERT INTO runs (id, profile, branch, old_value, new_value, status, stage, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Profile, run.Branch, run.OldValue, run.NewValue, string(run.Status), string(run.Stage), now)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// UpdateRun stores the branch, values and stage reached so far
func (s *Store) UpdateRun(run *domain.Run) error {
	_, err := s.db.Exec(`UPDATE runs SET branch = ?, old_value = ?, new_value = ?, stage = ? WHERE id = ?`,
		run.Branch, run.OldValue, run.NewValue, string(run.Stage), run.ID)
	return err
}

// FinishRun marks run completed, or failed when runErr is non-nil
func (s *Store) FinishRun(run *domain.Run, runErr error) error {
	now := s.now()
	run.FinishedAt = &now
	run.Status = domain.RunCompleted
	run.Error = ""
	if runErr != nil {
		run.Status = domain.RunFailed
		run.Error = runErr.Error()
	}

	_, err := s.db.Exec(`
		UPDATE runs SET branch = ?, old_value = ?, new_value = ?, stage = ?, status = ?, finished_at = ?, error = ?
		WHERE id = ?
	`, run.Branch, run.OldValue, run.NewValue, string(run.Stage), string(run.Status), now, run.Error, run.ID)
	return err
}

const runColumns = `id, profile, branch, old_value, new_value, status, stage, started_at, finished_at, error`

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*domain.Run, error) {
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
	}
	return scanRun(rows)
}

// ListRuns returns runs, newest first
func (s *Store) ListRuns(opts ListOptions) ([]*domain.Run, error) {
	query, args := opts.apply(`SELECT `+runColumns+` FROM runs`, "started_at")

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (*domain.Run, error) {
	var run domain.Run
	var branch, oldValue, newValue, stage, errText sql.NullString
	var status string
	var startedAt time.Time
	var finishedAt sql.NullTime

	err := rows.Scan(&run.ID, &run.Profile, &branch, &oldValue, &newValue, &status, &stage, &startedAt, &finishedAt, &errText)
	if err != nil {
		return nil, err
	}

	run.Branch = branch.String
	run.OldValue = oldValue.String
	run.NewValue = newValue.String
	run.Status = domain.RunStatus(status)
	run.Stage = domain.Stage(stage.String)
	run.Error = errText.String
	run.StartedAt = &startedAt
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return &run, nil
}
