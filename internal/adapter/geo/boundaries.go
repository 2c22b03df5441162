package geo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/couchcryptid/trade-indicators/internal/domain"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Natural Earth marks countries without an official ISO code with -99.
const noCode = "-99"

// Boundaries locates countries at the centroid of their boundary polygons.
// It implements domain.Locator.
type Boundaries struct {
	centroids map[string]orb.Point // keyed by ISO-3 code
}

// LoadBoundaries reads a GeoJSON FeatureCollection of country polygons. A
// missing file yields an empty locator so the map degrades instead of failing.
func LoadBoundaries(path string, logger *slog.Logger) (*Boundaries, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("country boundaries not found, map markers will need a geocoder", "path", path)
		return &Boundaries{centroids: map[string]orb.Point{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read boundaries: %w", err)
	}

	b, err := ParseBoundaries(data)
	if err != nil {
		return nil, fmt.Errorf("parse boundaries %s: %w", path, err)
	}
	logger.Info("country boundaries loaded", "path", path, "countries", b.Len())
	return b, nil
}

// ParseBoundaries builds a locator from GeoJSON bytes. Features are keyed by
// ISO_A3, falling back to ADM0_A3 when ISO_A3 is unset.
func ParseBoundaries(data []byte) (*Boundaries, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, err
	}

	b := &Boundaries{centroids: make(map[string]orb.Point, len(fc.Features))}
	for _, f := range fc.Features {
		code := featureCode(f)
		if code == "" || f.Geometry == nil {
			continue
		}
		if _, dup := b.centroids[code]; dup {
			continue
		}
		centroid, area := planar.CentroidArea(f.Geometry)
		if area == 0 && f.Geometry.Dimensions() == 2 {
			continue
		}
		b.centroids[code] = centroid
	}
	return b, nil
}

func featureCode(f *geojson.Feature) string {
	for _, key := range []string{"ISO_A3", "ADM0_A3", "iso_a3", "adm0_a3"} {
		code := strings.ToUpper(strings.TrimSpace(f.Properties.MustString(key, "")))
		if code != "" && code != noCode {
			return code
		}
	}
	return ""
}

// Len returns the number of locatable countries.
func (b *Boundaries) Len() int { return len(b.centroids) }

func (b *Boundaries) Locate(_ context.Context, iso3, _ string) (domain.Location, bool, error) {
	p, ok := b.centroids[strings.ToUpper(iso3)]
	if !ok {
		return domain.Location{}, false, nil
	}
	return domain.Location{Lat: p.Lat(), Lon: p.Lon(), Source: domain.LocationSourceBoundary}, true, nil
}

// Chain tries each locator in order and returns the first hit. An error from
// one locator is remembered but does not stop the chain.
type Chain []domain.Locator

func (c Chain) Locate(ctx context.Context, iso3, name string) (domain.Location, bool, error) {
	var errs []error
	for _, l := range c {
		if l == nil {
			continue
		}
		loc, ok, err := l.Locate(ctx, iso3, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			return loc, true, nil
		}
	}
	return domain.Location{}, false, errors.Join(errs...)
}
