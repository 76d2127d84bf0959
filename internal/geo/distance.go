package geo

import (
	"fmt"

	"github.com/golang/geo/s2"
)

// earthRadiusKm is the Earth's volumetric mean radius in kilometers,
// commonly used for spherical great-circle approximations.
//
// Reference: NASA Planetary Fact Sheet – Earth
// https://nssdc.gsfc.nasa.gov/planetary/factsheet/earthfact.html
const earthRadiusKm = 6371.0

// cellLevel is the S2 cell level used for coarse location keys.
// Cells at this level are a few hundred meters across, comfortably
// wider than the 100 m duplicate radius.
const cellLevel = 13

// DistanceKm returns the great-circle distance between two points in
// kilometers, computed with the haversine formula on a sphere of mean
// Earth radius. Callers that need meters multiply at the call site.
//
// The result is mathematically defined for any input, but it is only
// meaningful for coordinates inside the usual terrestrial ranges; no
// special handling exists for antipodal points or the poles.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * earthRadiusKm
}

// IsValidLatLon returns true if the given latitude and longitude fall
// within the valid geographic coordinate bounds.
//
// Note: the coordinate (0,0) is treated as invalid even though it is a
// real location in the Gulf of Guinea. Uninitialized or placeholder
// coordinates are commonly stored as (0,0), and no fuel station sits
// there.
func IsValidLatLon(lat, lon float64) bool {
	if lat == 0 && lon == 0 {
		return false
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return true
}

// CellKey returns a stable S2-based coarse key for a lat/lon pair.
func CellKey(lat, lon float64) string {
	ll := s2.LatLngFromDegrees(lat, lon)
	cellID := s2.CellIDFromLatLng(ll).Parent(cellLevel)
	return fmt.Sprintf("s2_%d", uint64(cellID))
}
