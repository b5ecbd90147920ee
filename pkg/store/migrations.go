package store

// migrationsSQL creates the results schema. Statements are split on ';'
// and executed in order by InitDB.
const migrationsSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	species TEXT NOT NULL,
	seed INTEGER NOT NULL,
	config_yaml TEXT,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP
);

CREATE TABLE IF NOT EXISTS stage_counts (
	run_id TEXT NOT NULL REFERENCES runs(id),
	stage TEXT NOT NULL,
	name TEXT NOT NULL,
	value INTEGER NOT NULL,
	PRIMARY KEY (run_id, stage, name)
);

CREATE TABLE IF NOT EXISTS metrics (
	run_id TEXT NOT NULL REFERENCES runs(id),
	name TEXT NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (run_id, name)
);

CREATE TABLE IF NOT EXISTS thresholds (
	run_id TEXT NOT NULL REFERENCES runs(id),
	method TEXT NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY (run_id)
);

CREATE TABLE IF NOT EXISTS contributions (
	run_id TEXT NOT NULL REFERENCES runs(id),
	variable TEXT NOT NULL,
	contribution REAL NOT NULL,
	permutation_importance REAL NOT NULL,
	PRIMARY KEY (run_id, variable)
);

CREATE TABLE IF NOT EXISTS cv_folds (
	run_id TEXT NOT NULL REFERENCES runs(id),
	fold INTEGER NOT NULL,
	train_presences INTEGER NOT NULL,
	test_presences INTEGER NOT NULL,
	background INTEGER NOT NULL,
	auc REAL NOT NULL,
	PRIMARY KEY (run_id, fold)
);

CREATE TABLE IF NOT EXISTS country_summaries (
	run_id TEXT NOT NULL REFERENCES runs(id),
	country TEXT NOT NULL,
	suitable_area_km2 REAL NOT NULL,
	percent_of_country REAL NOT NULL,
	PRIMARY KEY (run_id, country)
);
`
