// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package geotest builds coordinates at known distances for tests.
package geotest

import (
	"math"

	"github.com/bfa-sv/punchledger/pkg/geo"
)

// Offset returns the point reached by moving meters north and east from c.
// Accurate to well under a meter at the distances a geofence cares about.
func Offset(c geo.Coordinate, northMeters, eastMeters float64) geo.Coordinate {
	dLat := northMeters / geo.EarthRadiusMeters * 180 / math.Pi
	dLng := eastMeters / (geo.EarthRadiusMeters * math.Cos(c.Lat*math.Pi/180)) * 180 / math.Pi
	return geo.Coordinate{Lat: c.Lat + dLat, Lng: c.Lng + dLng}
}
