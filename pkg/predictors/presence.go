package predictors

import (
	"fmt"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/table"
)

// WritePresenceTable writes the presence samples: species, longitude,
// latitude, then one column per variable in stack order. The variable
// columns match the background table column-for-column; the fitting stage
// depends on that.
func WritePresenceTable(path, species string, varNames []string, samples []Sample) error {
	header := append([]string{"species", "longitude", "latitude"}, varNames...)
	rows := make([][]string, len(samples))
	for i, s := range samples {
		row := make([]string, 0, len(header))
		row = append(row, species, table.Float(s.Longitude), table.Float(s.Latitude))
		for _, v := range s.Values {
			row = append(row, table.Float(v))
		}
		rows[i] = row
	}
	return table.Write(path, header, rows)
}

// ReadPresenceTable reads a table written by WritePresenceTable, returning
// the variable names it carries.
func ReadPresenceTable(path string) (varNames []string, samples []Sample, err error) {
	header, rows, err := table.Read(path)
	if err != nil {
		return nil, nil, err
	}
	if len(header) < 4 || header[0] != "species" || header[1] != "longitude" || header[2] != "latitude" {
		return nil, nil, fmt.Errorf("%s: not a presence table", path)
	}
	varNames = header[3:]
	for _, row := range rows {
		s := Sample{Values: make([]float64, len(varNames))}
		if s.Longitude, err = table.ParseFloat("longitude", row[1]); err != nil {
			return nil, nil, err
		}
		if s.Latitude, err = table.ParseFloat("latitude", row[2]); err != nil {
			return nil, nil, err
		}
		for i := range varNames {
			if s.Values[i], err = table.ParseFloat(varNames[i], row[i+3]); err != nil {
				return nil, nil, err
			}
		}
		samples = append(samples, s)
	}
	return varNames, samples, nil
}
