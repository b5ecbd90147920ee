package predictors

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestPresenceTableRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presence.csv")
	vars := []string{"bio2", "bio15"}
	in := []Sample{
		{Longitude: 74.25, Latitude: 35.5, Values: []float64{11.5, 87.0}},
		{Longitude: 72.0, Latitude: 33.125, Values: []float64{9.25, 103.5}},
	}
	require.NoError(t, WritePresenceTable(path, "Capra sibirica", vars, in))

	gotVars, out, err := ReadPresenceTable(path)
	require.NoError(t, err)
	assert.Equal(t, vars, gotVars)
	require.Len(t, out, 2)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, in[1], out[1])
}

func TestReadPresenceTableRejectsWrongHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, WriteCorrelationCSV(path, []string{"bio2"}, mat.NewSymDense(1, []float64{1})))
	_, _, err := ReadPresenceTable(path)
	assert.Error(t, err)
}
