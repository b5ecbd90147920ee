package occurrence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrNoRecords indicates both the geometry-filtered and the unfiltered query
// came back empty. There is nothing to model without presences, so callers
// treat this as fatal.
var ErrNoRecords = errors.New("no occurrence records obtainable")

const (
	pageSize       = 300 // GBIF maximum per request
	requestTimeout = 30 * time.Second
)

// Client queries the GBIF occurrence search API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient returns a client for the given API base URL
// (e.g. https://api.gbif.org/v1).
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: requestTimeout},
	}
}

// gbifPage mirrors the GBIF search response envelope.
type gbifPage struct {
	Offset       int          `json:"offset"`
	Limit        int          `json:"limit"`
	EndOfRecords bool         `json:"endOfRecords"`
	Count        int          `json:"count"`
	Results      []gbifRecord `json:"results"`
}

type gbifRecord struct {
	Key              int64    `json:"key"`
	Species          string   `json:"species"`
	DecimalLongitude *float64 `json:"decimalLongitude"`
	DecimalLatitude  *float64 `json:"decimalLatitude"`
	Year             int      `json:"year"`
	Month            int      `json:"month"`
	BasisOfRecord    string   `json:"basisOfRecord"`
	UncertaintyM     *float64 `json:"coordinateUncertaintyInMeters"`
	Country          string   `json:"country"`
	Locality         string   `json:"locality"`
}

// FetchParams describes one acquisition request.
type FetchParams struct {
	Species  string
	Geometry string // WKT polygon; empty disables the geometry filter
	Cap      int    // maximum records to retrieve
}

// Fetch pages through the occurrence search until the cap or the end of
// records. Records without coordinates are skipped at this layer; all other
// cleaning happens in Clean.
func (c *Client) Fetch(ctx context.Context, p FetchParams) ([]Record, error) {
	var out []Record
	for offset := 0; len(out) < p.Cap; offset += pageSize {
		page, err := c.fetchPage(ctx, p, offset)
		if err != nil {
			return nil, err
		}
		for _, g := range page.Results {
			if g.DecimalLongitude == nil || g.DecimalLatitude == nil {
				continue
			}
			r := Record{
				Species:   g.Species,
				Longitude: *g.DecimalLongitude,
				Latitude:  *g.DecimalLatitude,
				Year:      g.Year,
				Month:     g.Month,
				Basis:     g.BasisOfRecord,
				Country:   g.Country,
				Locality:  g.Locality,
				GBIFID:    g.Key,
			}
			if g.UncertaintyM != nil {
				r.UncertaintyM = *g.UncertaintyM
			}
			out = append(out, r)
			if len(out) >= p.Cap {
				break
			}
		}
		if page.EndOfRecords {
			break
		}
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, p FetchParams, offset int) (*gbifPage, error) {
	q := url.Values{}
	q.Set("scientificName", p.Species)
	q.Set("hasCoordinate", "true")
	q.Set("hasGeospatialIssue", "false")
	q.Set("limit", strconv.Itoa(pageSize))
	q.Set("offset", strconv.Itoa(offset))
	if p.Geometry != "" {
		q.Set("geometry", p.Geometry)
	}

	u := fmt.Sprintf("%s/occurrence/search?%s", c.BaseURL, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "sdm-himalayan-ibex")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gbif request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gbif api returned status: %s", resp.Status)
	}

	var page gbifPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode gbif response: %w", err)
	}
	return &page, nil
}

// Acquire runs the two-attempt acquisition contract: a geometry-filtered
// query first, then an unfiltered query with client-side box filtering when
// the first returns zero rows. Returns ErrNoRecords when both are empty.
func (c *Client) Acquire(ctx context.Context, species, geometryWKT string, inBox func(lon, lat float64) bool, cap int) ([]Record, error) {
	recs, err := c.Fetch(ctx, FetchParams{Species: species, Geometry: geometryWKT, Cap: cap})
	if err != nil {
		return nil, fmt.Errorf("geometry-filtered query: %w", err)
	}
	if len(recs) > 0 {
		return recs, nil
	}

	recs, err = c.Fetch(ctx, FetchParams{Species: species, Cap: cap})
	if err != nil {
		return nil, fmt.Errorf("fallback query: %w", err)
	}
	var kept []Record
	for _, r := range recs {
		if inBox(r.Longitude, r.Latitude) {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoRecords
	}
	return kept, nil
}

func intField(v int) string     { return strconv.Itoa(v) }
func intField64(v int64) string { return strconv.FormatInt(v, 10) }

func parseIntField(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseIntField64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
