package store

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// Ensure single connection to avoid separate in-memory DBs per connection.
	db.SetMaxOpenConns(1)
	if err := InitDB(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createTestRun(t *testing.T, db *sql.DB) string {
	id, err := CreateRun(db, "Capra sibirica", 42, "seed: 42")
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	return id
}

func TestCreateAndFinishRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	id := createTestRun(t, db)
	if id == "" {
		t.Fatal("expected a run id")
	}
	if err := FinishRun(db, id); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	run, err := LatestRun(db)
	if err != nil {
		t.Fatalf("latest run: %v", err)
	}
	if run.ID != id {
		t.Fatalf("expected run %s, got %s", id, run.ID)
	}
	if run.Species != "Capra sibirica" {
		t.Fatalf("unexpected species %q", run.Species)
	}
	if run.FinishedAt.IsZero() {
		t.Fatal("expected finished_at to be set")
	}
}

func TestCreateRunRequiresSpecies(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	if _, err := CreateRun(db, "  ", 1, ""); err == nil {
		t.Fatal("expected error for empty species")
	}
}

func TestMetricsUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id := createTestRun(t, db)

	if err := RecordMetric(db, id, "auc", 0.8); err != nil {
		t.Fatalf("record metric: %v", err)
	}
	// Re-recording replaces the value.
	if err := RecordMetric(db, id, "auc", 0.91); err != nil {
		t.Fatalf("record metric 2: %v", err)
	}

	metrics, err := GetMetrics(db, id)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	if got := metrics["auc"]; got != 0.91 {
		t.Fatalf("expected auc=0.91, got %g", got)
	}
}

func TestThresholdRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id := createTestRun(t, db)

	if err := RecordThreshold(db, id, "roc_max_sens_spec", 0.41); err != nil {
		t.Fatalf("record threshold: %v", err)
	}
	method, value, err := GetThreshold(db, id)
	if err != nil {
		t.Fatalf("get threshold: %v", err)
	}
	if method != "roc_max_sens_spec" || value != 0.41 {
		t.Fatalf("unexpected threshold %s=%g", method, value)
	}
}

func TestStageCounts(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id := createTestRun(t, db)

	if err := RecordStageCount(db, id, "occurrences", "duplicates", 12); err != nil {
		t.Fatalf("record count: %v", err)
	}
	if err := RecordStageCount(db, id, "occurrences", "duplicates", 15); err != nil {
		t.Fatalf("record count 2: %v", err)
	}
	if err := RecordStageCount(db, id, "background", "sampled", 10000); err != nil {
		t.Fatalf("record count 3: %v", err)
	}
	counts, err := GetStageCounts(db, id)
	if err != nil {
		t.Fatalf("get counts: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected 2 counters, got %d", len(counts))
	}
	if counts[0].Stage != "background" {
		t.Fatalf("expected background first, got %s", counts[0].Stage)
	}
	if counts[1].Value != 15 {
		t.Fatalf("expected upserted value 15, got %d", counts[1].Value)
	}
}

func TestContributionsReplace(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id := createTestRun(t, db)

	first := []Contribution{{Variable: "bio2", Contribution: 60, PermutationImportance: 0.2}}
	if err := RecordContributions(db, id, first); err != nil {
		t.Fatalf("record contributions: %v", err)
	}
	second := []Contribution{
		{Variable: "bio2", Contribution: 55, PermutationImportance: 0.25},
		{Variable: "bio15", Contribution: 45, PermutationImportance: 0.1},
	}
	if err := RecordContributions(db, id, second); err != nil {
		t.Fatalf("record contributions 2: %v", err)
	}

	got, err := GetContributions(db, id)
	if err != nil {
		t.Fatalf("get contributions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Variable != "bio2" || got[0].Contribution != 55 {
		t.Fatalf("unexpected first row %+v", got[0])
	}
}

func TestCVFoldsRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id := createTestRun(t, db)

	folds := []CVFold{
		{Fold: 0, TrainPresences: 48, TestPresences: 12, Background: 960, AUC: 0.83},
		{Fold: 1, TrainPresences: 48, TestPresences: 12, Background: 955, AUC: 0.79},
	}
	if err := RecordCVFolds(db, id, folds); err != nil {
		t.Fatalf("record folds: %v", err)
	}
	got, err := GetCVFolds(db, id)
	if err != nil {
		t.Fatalf("get folds: %v", err)
	}
	if len(got) != 2 || got[0] != folds[0] || got[1] != folds[1] {
		t.Fatalf("fold mismatch: %+v", got)
	}
}

func TestCountrySummariesOrdered(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	id := createTestRun(t, db)

	rows := []CountrySummary{
		{Country: "India", SuitableAreaKm2: 1200, PercentOfCountry: 3.5},
		{Country: "Pakistan", SuitableAreaKm2: 5400, PercentOfCountry: 8.1},
	}
	if err := RecordCountrySummaries(db, id, rows); err != nil {
		t.Fatalf("record summaries: %v", err)
	}
	got, err := GetCountrySummaries(db, id)
	if err != nil {
		t.Fatalf("get summaries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[0].Country != "Pakistan" {
		t.Fatalf("expected Pakistan first, got %s", got[0].Country)
	}
}
