// Package geo checks GPS readings attached to evidence and summarises how
// tightly a job's readings cluster.
package geo

import (
	"fmt"
	"math"

	"tradeproof/pkg/types"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// ConsistentRadiusMeters is the spread under which a job's readings are
// reported as taken at one site.
const ConsistentRadiusMeters = 250.0

// Reading is a single GPS fix.
type Reading struct {
	Latitude  float64
	Longitude float64
	Accuracy  *float64
}

func (r Reading) Point() orb.Point {
	return orb.Point{r.Longitude, r.Latitude}
}

// Validate rejects coordinates outside the WGS84 range and accuracy that is
// negative or not finite.
func (r Reading) Validate() error {
	if !finite(r.Latitude) || r.Latitude < -90 || r.Latitude > 90 {
		return types.Validationf("GPS latitude must be between -90 and 90")
	}
	if !finite(r.Longitude) || r.Longitude < -180 || r.Longitude > 180 {
		return types.Validationf("GPS longitude must be between -180 and 180")
	}
	if r.Accuracy != nil && (!finite(*r.Accuracy) || *r.Accuracy < 0) {
		return types.Validationf("GPS accuracy must be zero or greater")
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// FromEvidence returns the item's reading, if it has one.
func FromEvidence(item *types.EvidenceItem) (Reading, bool) {
	if item == nil || !item.HasGPS() {
		return Reading{}, false
	}
	return Reading{Latitude: *item.GPSLatitude, Longitude: *item.GPSLongitude, Accuracy: item.GPSAccuracy}, true
}

type Summary struct {
	Readings        int       `json:"readings"`
	Center          orb.Point `json:"center"`
	MaxSpreadMeters float64   `json:"max_spread_meters"`
	Consistent      bool      `json:"consistent"`
}

// Summarize reports the bounding-box centre of every GPS-tagged item and the
// furthest reading from it. It returns nil when no item carries GPS.
func Summarize(items []*types.EvidenceItem) *Summary {
	var points orb.MultiPoint
	for _, item := range items {
		if r, ok := FromEvidence(item); ok {
			points = append(points, r.Point())
		}
	}

	if len(points) == 0 {
		return nil
	}

	center := points.Bound().Center()

	var spread float64
	for _, p := range points {
		spread = max(spread, geo.Distance(center, p))
	}

	return &Summary{
		Readings:        len(points),
		Center:          center,
		MaxSpreadMeters: spread,
		Consistent:      spread <= ConsistentRadiusMeters,
	}
}

// Describe renders the summary as one line for reports.
func (s *Summary) Describe() string {
	if s == nil {
		return "No GPS readings were captured for this job."
	}

	place := fmt.Sprintf("%.5f, %.5f", s.Center.Lat(), s.Center.Lon())
	if s.Readings == 1 {
		return fmt.Sprintf("1 GPS reading captured at %s.", place)
	}
	if s.Consistent {
		return fmt.Sprintf("%d GPS readings, all within %.0f m of %s.", s.Readings, math.Ceil(s.MaxSpreadMeters), place)
	}
	return fmt.Sprintf("%d GPS readings spread up to %.0f m from %s; review locations.", s.Readings, math.Ceil(s.MaxSpreadMeters), place)
}

// FormatReading renders one item's coordinates with accuracy when known.
func FormatReading(r Reading) string {
	if r.Accuracy != nil {
		return fmt.Sprintf("%.6f, %.6f (±%.0f m)", r.Latitude, r.Longitude, *r.Accuracy)
	}
	return fmt.Sprintf("%.6f, %.6f", r.Latitude, r.Longitude)
}
