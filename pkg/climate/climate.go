// Package climate acquires the gridded bioclimatic dataset and crops it to
// the study region.
package climate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/Syedinzimam/SDM-Himalayan-Ibex/pkg/raster"
)

// Catalogue lists the 19 bioclimatic variables in their fixed order. Layer
// names throughout the pipeline follow this catalogue.
var Catalogue = []string{
	"bio1", "bio2", "bio3", "bio4", "bio5", "bio6", "bio7", "bio8", "bio9", "bio10",
	"bio11", "bio12", "bio13", "bio14", "bio15", "bio16", "bio17", "bio18", "bio19",
}

// Descriptions maps each variable to its meaning, for reporting.
var Descriptions = map[string]string{
	"bio1":  "annual mean temperature",
	"bio2":  "mean diurnal range",
	"bio3":  "isothermality",
	"bio4":  "temperature seasonality",
	"bio5":  "max temperature of warmest month",
	"bio6":  "min temperature of coldest month",
	"bio7":  "temperature annual range",
	"bio8":  "mean temperature of wettest quarter",
	"bio9":  "mean temperature of driest quarter",
	"bio10": "mean temperature of warmest quarter",
	"bio11": "mean temperature of coldest quarter",
	"bio12": "annual precipitation",
	"bio13": "precipitation of wettest month",
	"bio14": "precipitation of driest month",
	"bio15": "precipitation seasonality",
	"bio16": "precipitation of wettest quarter",
	"bio17": "precipitation of driest quarter",
	"bio18": "precipitation of warmest quarter",
	"bio19": "precipitation of coldest quarter",
}

const downloadTimeout = 10 * time.Minute

// EnsureGlobal checks whether the global bioclim NetCDF exists at path and
// downloads it from url otherwise. A failed download removes the partial
// file and returns an error whose message includes manual download
// instructions; there is no retry.
func EnsureGlobal(ctx context.Context, url, path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "sdm-himalayan-ibex")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return manualRemedy(url, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return manualRemedy(url, path, fmt.Errorf("status %s", resp.Status))
	}

	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(path)
		return manualRemedy(url, path, err)
	}
	return out.Close()
}

func manualRemedy(url, path string, cause error) error {
	return fmt.Errorf("climate download failed: %w\nmanual remedy: download %s yourself and place it at %s, then re-run",
		cause, url, path)
}

// LoadCropped reads the global stack from path and crops it to the box,
// verifying the 19-layer catalogue order.
func LoadCropped(path string, minLon, minLat, maxLon, maxLat float64) (*raster.Stack, error) {
	global, err := raster.ReadStack(path)
	if err != nil {
		return nil, fmt.Errorf("load global bioclim: %w", err)
	}
	if len(global.Names) != len(Catalogue) {
		return nil, fmt.Errorf("global bioclim has %d layers, expected %d", len(global.Names), len(Catalogue))
	}
	for i, name := range Catalogue {
		if global.Names[i] != name {
			return nil, fmt.Errorf("layer %d is %s, expected %s", i, global.Names[i], name)
		}
	}
	cropped, err := global.Crop(minLon, minLat, maxLon, maxLat)
	if err != nil {
		return nil, fmt.Errorf("crop bioclim: %w", err)
	}
	return cropped, nil
}
