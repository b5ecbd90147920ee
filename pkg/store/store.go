// Package store persists run results in a SQLite database alongside the
// CSV exports, so every metric, threshold, and summary stays queryable
// across runs.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB
// or *sql.Tx.
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// Open opens (creating if needed) the results database at path and runs
// migrations.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open results db %s: %w", path, err)
	}
	if err := InitDB(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate results db %s: %w", path, err)
	}
	return conn, nil
}

// InitDB runs migrations on the given DB connection using the embedded SQL.
func InitDB(db *sql.DB) error {
	stmts := strings.Split(migrationsSQL, ";")
	for _, s := range stmts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// CreateRun inserts a new run row and returns its id.
func CreateRun(db DBExecutor, species string, seed int64, configYAML string) (string, error) {
	if strings.TrimSpace(species) == "" {
		return "", fmt.Errorf("species must be non-empty")
	}
	id := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO runs (id, species, seed, config_yaml, started_at) VALUES (?, ?, ?, ?, ?)`,
		id, species, seed, configYAML, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run's completion time.
func FinishRun(db DBExecutor, runID string) error {
	_, err := db.Exec(`UPDATE runs SET finished_at = ? WHERE id = ?`, time.Now(), runID)
	return err
}

// LatestRun returns the most recently started run.
func LatestRun(db DBExecutor) (*Run, error) {
	var r Run
	var finished sql.NullTime
	err := db.QueryRow(
		`SELECT id, species, seed, config_yaml, started_at, finished_at
		 FROM runs ORDER BY started_at DESC LIMIT 1`,
	).Scan(&r.ID, &r.Species, &r.Seed, &r.ConfigYAML, &r.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		r.FinishedAt = finished.Time
	}
	return &r, nil
}

// RecordStageCount upserts one audit counter for the run.
func RecordStageCount(db DBExecutor, runID, stage, name string, value int) error {
	_, err := db.Exec(
		`INSERT INTO stage_counts (run_id, stage, name, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, stage, name) DO UPDATE SET value = excluded.value`,
		runID, stage, name, value,
	)
	return err
}

// GetStageCounts returns the run's audit counters in stage then name order.
func GetStageCounts(db DBExecutor, runID string) ([]StageCount, error) {
	rows, err := db.Query(
		`SELECT stage, name, value FROM stage_counts WHERE run_id = ? ORDER BY stage, name`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StageCount
	for rows.Next() {
		var sc StageCount
		if err := rows.Scan(&sc.Stage, &sc.Name, &sc.Value); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// RecordMetric upserts one named metric for the run.
func RecordMetric(db DBExecutor, runID, name string, value float64) error {
	_, err := db.Exec(
		`INSERT INTO metrics (run_id, name, value) VALUES (?, ?, ?)
		 ON CONFLICT(run_id, name) DO UPDATE SET value = excluded.value`,
		runID, name, value,
	)
	return err
}

// GetMetrics returns all metrics of a run keyed by name.
func GetMetrics(db DBExecutor, runID string) (map[string]float64, error) {
	rows, err := db.Query(`SELECT name, value FROM metrics WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var name string
		var value float64
		if err := rows.Scan(&name, &value); err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, rows.Err()
}

// RecordThreshold upserts the run's classification operating point.
func RecordThreshold(db DBExecutor, runID, method string, value float64) error {
	_, err := db.Exec(
		`INSERT INTO thresholds (run_id, method, value) VALUES (?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET method = excluded.method, value = excluded.value`,
		runID, method, value,
	)
	return err
}

// GetThreshold returns the run's operating point.
func GetThreshold(db DBExecutor, runID string) (method string, value float64, err error) {
	err = db.QueryRow(`SELECT method, value FROM thresholds WHERE run_id = ?`, runID).
		Scan(&method, &value)
	return method, value, err
}

// RecordContributions replaces the run's variable-importance rows in one
// transaction.
func RecordContributions(db *sql.DB, runID string, rows []Contribution) error {
	return inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM contributions WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, c := range rows {
			if _, err := tx.Exec(
				`INSERT INTO contributions (run_id, variable, contribution, permutation_importance)
				 VALUES (?, ?, ?, ?)`,
				runID, c.Variable, c.Contribution, c.PermutationImportance,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetContributions returns the run's variable-importance rows sorted by
// contribution descending.
func GetContributions(db DBExecutor, runID string) ([]Contribution, error) {
	rows, err := db.Query(
		`SELECT variable, contribution, permutation_importance FROM contributions
		 WHERE run_id = ? ORDER BY contribution DESC, variable`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Contribution
	for rows.Next() {
		var c Contribution
		if err := rows.Scan(&c.Variable, &c.Contribution, &c.PermutationImportance); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecordCVFolds replaces the run's cross-validation rows in one transaction.
func RecordCVFolds(db *sql.DB, runID string, folds []CVFold) error {
	return inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM cv_folds WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, f := range folds {
			if _, err := tx.Exec(
				`INSERT INTO cv_folds (run_id, fold, train_presences, test_presences, background, auc)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				runID, f.Fold, f.TrainPresences, f.TestPresences, f.Background, f.AUC,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetCVFolds returns the run's cross-validation rows in fold order.
func GetCVFolds(db DBExecutor, runID string) ([]CVFold, error) {
	rows, err := db.Query(
		`SELECT fold, train_presences, test_presences, background, auc
		 FROM cv_folds WHERE run_id = ? ORDER BY fold`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CVFold
	for rows.Next() {
		var f CVFold
		if err := rows.Scan(&f.Fold, &f.TrainPresences, &f.TestPresences, &f.Background, &f.AUC); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RecordCountrySummaries replaces the run's per-country rows in one
// transaction.
func RecordCountrySummaries(db *sql.DB, runID string, rows []CountrySummary) error {
	return inTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM country_summaries WHERE run_id = ?`, runID); err != nil {
			return err
		}
		for _, c := range rows {
			if _, err := tx.Exec(
				`INSERT INTO country_summaries (run_id, country, suitable_area_km2, percent_of_country)
				 VALUES (?, ?, ?, ?)`,
				runID, c.Country, c.SuitableAreaKm2, c.PercentOfCountry,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetCountrySummaries returns the run's per-country rows, largest area
// first.
func GetCountrySummaries(db DBExecutor, runID string) ([]CountrySummary, error) {
	rows, err := db.Query(
		`SELECT country, suitable_area_km2, percent_of_country FROM country_summaries
		 WHERE run_id = ? ORDER BY suitable_area_km2 DESC, country`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CountrySummary
	for rows.Next() {
		var c CountrySummary
		if err := rows.Scan(&c.Country, &c.SuitableAreaKm2, &c.PercentOfCountry); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func inTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
