package occurrence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/config"
)

func testBox() config.BoundingBox {
	return config.BoundingBox{MinLon: 71, MinLat: 32, MaxLon: 78, MaxLat: 37}
}

func TestCleanFiltersAndDeduplicates(t *testing.T) {
	box := testBox()
	recs := []Record{
		{Longitude: 74.5, Latitude: 35.5, UncertaintyM: 500},  // keep
		{Longitude: 74.5, Latitude: 35.5, UncertaintyM: 100},  // duplicate coords
		{Longitude: 80.0, Latitude: 35.5},                     // outside box
		{Longitude: 74.6, Latitude: 35.5, UncertaintyM: 25000}, // too uncertain
		{Longitude: 0, Latitude: 0},                           // degenerate
		{Longitude: 74.7, Latitude: 35.1},                     // keep, unknown uncertainty
	}

	out, stats := Clean(recs, box.Contains, 10000)

	require.Len(t, out, 2)
	assert.Equal(t, 1, stats.Duplicates)
	assert.Equal(t, 2, stats.OutsideBox) // (0,0) is outside the box before the degenerate rule fires
	assert.Equal(t, 1, stats.TooUncertain)
	assert.Equal(t, 2, stats.Output)

	for _, r := range out {
		assert.True(t, box.Contains(r.Longitude, r.Latitude))
		assert.LessOrEqual(t, r.UncertaintyM, 10000.0)
	}
}

func TestCleanUniqueCoordinates(t *testing.T) {
	box := testBox()
	recs := []Record{
		{Longitude: 73.1, Latitude: 34.1},
		{Longitude: 73.1, Latitude: 34.2},
		{Longitude: 73.1, Latitude: 34.1},
		{Longitude: 73.1, Latitude: 34.1},
	}
	out, stats := Clean(recs, box.Contains, 10000)
	require.Len(t, out, 2)
	assert.Equal(t, 2, stats.Duplicates)

	seen := map[[2]float64]bool{}
	for _, r := range out {
		key := [2]float64{r.Longitude, r.Latitude}
		assert.False(t, seen[key], "coordinates %v appear twice", key)
		seen[key] = true
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := t.TempDir() + "/occ.csv"
	recs := []Record{
		{Species: "Capra sibirica", Longitude: 74.5, Latitude: 35.5, Year: 2019, Month: 7,
			Basis: "HUMAN_OBSERVATION", UncertaintyM: 120, Country: "Pakistan", Locality: "Khunjerab", GBIFID: 1234567},
	}
	require.NoError(t, WriteCSV(path, recs))
	got, err := ReadCSV(path)
	require.NoError(t, err)
	require.Equal(t, recs, got)
}
