// Package occurrence acquires and cleans species presence records from the
// GBIF occurrence API.
package occurrence

import (
	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/table"
)

// Record is one presence observation as returned by GBIF, trimmed to the
// fields the pipeline uses. Cleaned records are immutable downstream.
type Record struct {
	Species      string
	Longitude    float64
	Latitude     float64
	Year         int
	Month        int
	Basis        string
	UncertaintyM float64 // 0 means unknown
	Country      string
	Locality     string
	GBIFID       int64
}

var csvHeader = []string{
	"species", "longitude", "latitude", "year", "month",
	"basis_of_record", "coordinate_uncertainty_m", "country", "locality", "gbif_id",
}

// WriteCSV writes records in the occurrence-table schema.
func WriteCSV(path string, recs []Record) error {
	rows := make([][]string, len(recs))
	for i, r := range recs {
		rows[i] = []string{
			r.Species,
			table.Float(r.Longitude),
			table.Float(r.Latitude),
			intField(r.Year),
			intField(r.Month),
			r.Basis,
			table.Float(r.UncertaintyM),
			r.Country,
			r.Locality,
			intField64(r.GBIFID),
		}
	}
	return table.Write(path, csvHeader, rows)
}

// ReadCSV reads records written by WriteCSV.
func ReadCSV(path string) ([]Record, error) {
	_, rows, err := table.Read(path)
	if err != nil {
		return nil, err
	}
	recs := make([]Record, 0, len(rows))
	for _, row := range rows {
		lon, err := table.ParseFloat("longitude", row[1])
		if err != nil {
			return nil, err
		}
		lat, err := table.ParseFloat("latitude", row[2])
		if err != nil {
			return nil, err
		}
		unc, err := table.ParseFloat("coordinate_uncertainty_m", row[6])
		if err != nil {
			return nil, err
		}
		recs = append(recs, Record{
			Species:      row[0],
			Longitude:    lon,
			Latitude:     lat,
			Year:         parseIntField(row[3]),
			Month:        parseIntField(row[4]),
			Basis:        row[5],
			UncertaintyM: unc,
			Country:      row[7],
			Locality:     row[8],
			GBIFID:       parseIntField64(row[9]),
		})
	}
	return recs, nil
}
