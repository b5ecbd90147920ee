package store

import "time"

// Run is one pipeline execution.
type Run struct {
	ID         string
	Species    string
	Seed       int64
	ConfigYAML string
	StartedAt  time.Time
	FinishedAt time.Time // zero until FinishRun
}

// StageCount is one audit counter, e.g. how many records a cleaning rule
// dropped.
type StageCount struct {
	Stage string
	Name  string
	Value int
}

// Contribution pairs the two variable-importance statistics.
type Contribution struct {
	Variable              string
	Contribution          float64
	PermutationImportance float64
}

// CVFold mirrors one cross-validation fold result.
type CVFold struct {
	Fold           int
	TrainPresences int
	TestPresences  int
	Background     int
	AUC            float64
}

// CountrySummary is one per-country aggregation row.
type CountrySummary struct {
	Country          string
	SuitableAreaKm2  float64
	PercentOfCountry float64
}
