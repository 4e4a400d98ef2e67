package models

import (
	"fmt"
	"math"
)

const (
	earthRadiusKilometers = 6371.0
	earthRadiusMiles      = 3958.8
)

// GeoPoint is a latitude/longitude pair stored in a GeoPoint attribute.
// Only one attribute per class may hold a GeoPoint.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// NewGeoPoint validates the coordinates and returns a GeoPoint.
func NewGeoPoint(latitude, longitude float64) (GeoPoint, error) {
	gp := GeoPoint{Latitude: latitude, Longitude: longitude}
	if err := gp.Validate(); err != nil {
		return GeoPoint{}, err
	}
	return gp, nil
}

// Validate checks that the coordinates are within range.
func (gp GeoPoint) Validate() error {
	if math.IsNaN(gp.Latitude) || gp.Latitude < -90 || gp.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", gp.Latitude)
	}
	if math.IsNaN(gp.Longitude) || gp.Longitude < -180 || gp.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", gp.Longitude)
	}
	return nil
}

func (gp GeoPoint) GetCoordinates() [2]float64 {
	return [2]float64{gp.Latitude, gp.Longitude}
}

// RadiansTo returns the great-circle distance to other in radians.
func (gp GeoPoint) RadiansTo(other GeoPoint) float64 {
	toRad := math.Pi / 180
	lat1, lon1 := gp.Latitude*toRad, gp.Longitude*toRad
	lat2, lon2 := other.Latitude*toRad, other.Longitude*toRad

	sinDLat := math.Sin((lat1 - lat2) / 2)
	sinDLon := math.Sin((lon1 - lon2) / 2)

	a := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	a = math.Min(1, a)
	return 2 * math.Asin(math.Sqrt(a))
}

func (gp GeoPoint) KilometersTo(other GeoPoint) float64 {
	return gp.RadiansTo(other) * earthRadiusKilometers
}

func (gp GeoPoint) MilesTo(other GeoPoint) float64 {
	return gp.RadiansTo(other) * earthRadiusMiles
}

func (gp GeoPoint) Encode() map[string]any {
	return map[string]any{
		"__type":    TypeGeoPoint,
		"latitude":  gp.Latitude,
		"longitude": gp.Longitude,
	}
}

func (gp GeoPoint) String() string {
	return fmt.Sprintf("(%v, %v)", gp.Latitude, gp.Longitude)
}

// KilometersToRadians converts a distance on the earth's surface to radians.
func KilometersToRadians(km float64) float64 {
	return km / earthRadiusKilometers
}

// MilesToRadians converts a distance on the earth's surface to radians.
func MilesToRadians(miles float64) float64 {
	return miles / earthRadiusMiles
}
