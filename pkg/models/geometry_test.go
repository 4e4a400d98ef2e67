package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeoPoint_validation(t *testing.T) {
	testcases := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{name: "origin", lat: 0, lon: 0},
		{name: "bounds", lat: -90, lon: 180},
		{name: "latitude too large", lat: 90.1, lon: 0, wantErr: true},
		{name: "longitude too small", lat: 0, lon: -180.5, wantErr: true},
		{name: "NaN", lat: math.NaN(), lon: 0, wantErr: true},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewGeoPoint(tc.lat, tc.lon)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestGeoPoint_distances(t *testing.T) {
	beijing, err := NewGeoPoint(39.9, 116.4)
	require.NoError(t, err)
	shanghai, err := NewGeoPoint(31.2, 121.5)
	require.NoError(t, err)

	assert.InDelta(t, 0, beijing.RadiansTo(beijing), 1e-12)
	assert.InDelta(t, 1067, beijing.KilometersTo(shanghai), 10)
	assert.InDelta(t, beijing.KilometersTo(shanghai)/1.609, beijing.MilesTo(shanghai), 2)
	assert.InDelta(t, beijing.RadiansTo(shanghai), KilometersToRadians(beijing.KilometersTo(shanghai)), 1e-9)

	// antipodes
	assert.InDelta(t, math.Pi, GeoPoint{0, 0}.RadiansTo(GeoPoint{0, 180}), 1e-9)
}
