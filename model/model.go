package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Holds all external facing types and constants.

type TransportMode int

const (
	ModeNone TransportMode = iota
	ModeTram
	ModeBus
	ModeTrain
	ModeFerry
	ModeSubway
	ModeRailReplacementBus
	ModeWalk
	ModeConnect
)

var modeNames = map[TransportMode]string{
	ModeNone:               "none",
	ModeTram:               "tram",
	ModeBus:                "bus",
	ModeTrain:              "train",
	ModeFerry:              "ferry",
	ModeSubway:             "subway",
	ModeRailReplacementBus: "rail_replacement_bus",
	ModeWalk:               "walk",
	ModeConnect:            "connect",
}

func (m TransportMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Parses a mode name as produced by String(). Matching is case
// insensitive.
func ParseTransportMode(s string) (TransportMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for mode, name := range modeNames {
		if name == s {
			return mode, nil
		}
	}
	return ModeNone, fmt.Errorf("unknown transport mode '%s'", s)
}

// True for modes that involve boarding a scheduled vehicle.
func (m TransportMode) IsVehicle() bool {
	switch m {
	case ModeTram, ModeBus, ModeTrain, ModeFerry, ModeSubway, ModeRailReplacementBus:
		return true
	}
	return false
}

// Upper bound on the number of graph hops a branch may take when this
// mode is enabled.
func (m TransportMode) MaxPathLength() int {
	switch m {
	case ModeTram, ModeSubway:
		return 400
	case ModeBus, ModeRailReplacementBus:
		return 1000
	case ModeTrain:
		return 2000
	case ModeFerry:
		return 200
	}
	return 0
}

type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   int8
}

type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType int8
}

const (
	ExceptionTypeAdded   = 1
	ExceptionTypeRemoved = 2
)

type LocationKind int

const (
	LocationStation LocationKind = iota
	LocationPlatform
	LocationGroup
	LocationMyLocation
)

// A place a journey can visit: a station, platform, station group or
// an arbitrary coordinate.
type Location struct {
	ID   string
	Kind LocationKind
	Lat  float64
	Lon  float64
}

func (l Location) String() string {
	if l.Kind == LocationMyLocation {
		return fmt.Sprintf("%.5f,%.5f", l.Lat, l.Lon)
	}
	return l.ID
}

// Formats a time offset from service day midnight as HH:MM. Offsets
// past midnight keep counting hours, as schedules do (e.g. 25:10).
func FormatTime(offset time.Duration) string {
	h := int(offset.Hours())
	m := int(offset.Minutes()) - h*60
	return fmt.Sprintf("%02d:%02d", h, m)
}

// Parses HH:MM (or H:MM) into an offset from service day midnight.
func ParseTime(s string) (time.Duration, error) {
	split := strings.Split(strings.TrimSpace(s), ":")
	if len(split) != 2 {
		return 0, fmt.Errorf("found %d parts in '%s'", len(split), s)
	}

	h, err := strconv.Atoi(split[0])
	if err != nil || h < 0 || h > 47 {
		return 0, fmt.Errorf("invalid hour in '%s'", s)
	}
	m, err := strconv.Atoi(split[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in '%s'", s)
	}

	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
