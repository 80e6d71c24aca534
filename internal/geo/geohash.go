// Package geo wraps geohash math for the map query path: encoding cat
// locations into sortable proximity keys and covering a viewport with the
// smallest workable set of key prefixes.
package geo

import (
	"fmt"
	"sort"

	"github.com/mmcloughlin/geohash"

	"github.com/whiskermap/go-catmap-backend/internal/core"
)

// StoredPrecision is the geohash length persisted on cat records (~38m
// cells). Part of the public contract: changing it invalidates stored keys.
const StoredPrecision = 8

// CoverPrecision is the longest prefix length used to cover a viewport.
const CoverPrecision = 5

// maxCoverPrefixes bounds the fan-out of a single viewport query. When a
// cover at some precision exceeds it, the cover is retried one level
// coarser.
const maxCoverPrefixes = 16

// BoundingBox is a lat/lon rectangle. Min must be <= Max on both axes;
// boxes crossing the antimeridian are not supported.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// Validate checks coordinate ranges and corner ordering.
func (b BoundingBox) Validate() error {
	if err := ValidateCoords(b.MinLat, b.MinLon); err != nil {
		return err
	}
	if err := ValidateCoords(b.MaxLat, b.MaxLon); err != nil {
		return err
	}
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return fmt.Errorf("%w: bounding box corners out of order", core.ErrValidation)
	}
	return nil
}

// Contains reports exact membership, used to correct the approximate
// prefix cover after retrieval.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// ValidateCoords rejects out-of-range latitude/longitude.
func ValidateCoords(lat, lon float64) error {
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", core.ErrValidation, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", core.ErrValidation, lon)
	}
	return nil
}

// Encode returns the geohash for a coordinate at the given precision.
// Deterministic: identical input always yields the identical string.
func Encode(lat, lon float64, precision uint) string {
	return geohash.EncodeWithPrecision(lat, lon, precision)
}

// BoundingBoxPrefixes enumerates geohash prefixes covering the box,
// starting at CoverPrecision and backing off one character at a time while
// the cover exceeds maxCoverPrefixes. Cells only approximate rectangles,
// so callers must still filter results by exact containment.
func BoundingBoxPrefixes(b BoundingBox) []string {
	for p := uint(CoverPrecision); p > 1; p-- {
		prefixes := coverAt(b, p)
		if len(prefixes) <= maxCoverPrefixes {
			return prefixes
		}
	}
	return coverAt(b, 1)
}

func coverAt(b BoundingBox, precision uint) []string {
	// Cell dimensions at this precision, from any cell in the box.
	cell := geohash.BoundingBox(geohash.EncodeWithPrecision(b.MinLat, b.MinLon, precision))
	latStep := cell.MaxLat - cell.MinLat
	lonStep := cell.MaxLng - cell.MinLng

	seen := map[string]struct{}{}
	for lat := b.MinLat; lat < b.MaxLat+latStep; lat += latStep {
		for lon := b.MinLon; lon < b.MaxLon+lonStep; lon += lonStep {
			clat, clon := clampLat(lat), clampLon(lon)
			seen[geohash.EncodeWithPrecision(clat, clon, precision)] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func clampLat(v float64) float64 {
	if v > 90 {
		return 90
	}
	if v < -90 {
		return -90
	}
	return v
}

func clampLon(v float64) float64 {
	if v > 180 {
		return 180
	}
	if v < -180 {
		return -180
	}
	return v
}
