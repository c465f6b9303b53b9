package journeys

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnknownStation   = errors.New("unknown station")
	ErrNoNearbyStations = errors.New("no stations nearby")
)

// Where a journey starts or ends: a station (or station group) by
// ID, or a coordinate.
type Endpoint struct {
	StationID string
	Lat       float64
	Lon       float64

	location bool
}

func StationEndpoint(stationID string) Endpoint {
	return Endpoint{StationID: stationID}
}

func LocationEndpoint(lat, lon float64) Endpoint {
	return Endpoint{Lat: lat, Lon: lon, location: true}
}

// Parses "lat,lon" as a location and anything else as a station ID.
func ParseEndpoint(s string) (Endpoint, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}

	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return StationEndpoint(s), nil
	}

	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLon != nil {
		return StationEndpoint(s), nil
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Endpoint{}, fmt.Errorf("coordinate out of range: %s", s)
	}

	return LocationEndpoint(lat, lon), nil
}

func (e Endpoint) IsLocation() bool {
	return e.location
}

func (e Endpoint) String() string {
	if e.location {
		return fmt.Sprintf("%.5f,%.5f", e.Lat, e.Lon)
	}
	return e.StationID
}
