package dialogue

import (
	"regexp"
	"strconv"
	"time"
)

// Parser keys. These double as the memory map keys that DialogueState
// stores each parser's latest emitted value under.
const (
	KeyVehicleName    = "VehicleNameParser"
	KeyGliderLABDOS   = "GliderLABDOSParser"
	KeyGPSTime        = "GPSTimeParser"
	KeyGPSLatLon      = "GPSLatLonParser"
	KeyMenu           = "MenuParser"
	KeyDisconnectEvnt = "DisconnectEventParser"
)

// LatLon holds a raw GPS fix in DDMM.mmm form, exactly as the glider prints
// it. Consumers that need decimal degrees must convert themselves; see
// Decimal().
type LatLon struct {
	LatDDMM float64
	LonDDMM float64
}

// ddmmToDecimal converts a DDMM.mmm value to decimal degrees.
func ddmmToDecimal(ddmm float64) float64 {
	degrees := float64(int(ddmm / 100))
	minutes := ddmm - degrees*100
	return degrees + minutes/60
}

// Decimal returns the fix converted to decimal degrees (lat, lon).
func (ll LatLon) Decimal() (float64, float64) {
	return ddmmToDecimal(ll.LatDDMM), ddmmToDecimal(ll.LonDDMM)
}

// parser recognizes one line-anchored pattern in a dialogue line and
// returns the key to store it under and the parsed value. A nil value
// means the line didn't match.
type parser interface {
	key() string
	parse(line string) (value any, matched bool)
}

// defaultParsers is the fixed, ordered parser list every DialogueState
// runs each line through, in this order, matching the source's parser
// registration order.
func defaultParsers() []parser {
	return []parser{
		vehicleNameParser{},
		gliderLABDOSParser{},
		gpsTimeParser{},
		gpsLatLonParser{},
		menuParser{},
		disconnectEventParser{},
	}
}

// Vehicle Name: sebastian
type vehicleNameParser struct{}

var vehicleNameRegexp = regexp.MustCompile(`^Vehicle Name: (\w+)`)

func (vehicleNameParser) key() string { return KeyVehicleName }

func (vehicleNameParser) parse(line string) (any, bool) {
	m := vehicleNameRegexp.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return m[1], true
}

// GliderLAB or GliderDOS
type gliderLABDOSParser struct{}

var gliderLABDOSRegexp = regexp.MustCompile(`^Glider(LAB|DOS)`)

func (gliderLABDOSParser) key() string { return KeyGliderLABDOS }

func (gliderLABDOSParser) parse(line string) (any, bool) {
	m := gliderLABDOSRegexp.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	return m[1], true
}

// Curr Time: Mon Jul  7 16:40:19 2025 MT:  176064
type gpsTimeParser struct{}

var gpsTimeRegexp = regexp.MustCompile(`^Curr Time: (\w+) (\w+) +(\d+) +(\d+):(\d+):(\d+) (\d+) MT: +(\d+)`)

func (gpsTimeParser) key() string { return KeyGPSTime }

func (gpsTimeParser) parse(line string) (any, bool) {
	m := gpsTimeRegexp.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	// m[1]=DOW m[2]=month m[3]=day m[4]=hh m[5]=mm m[6]=ss m[7]=year m[8]=MT
	layout := "Jan 2 15 04 05 2006"
	s := m[2] + " " + m[3] + " " + m[4] + " " + m[5] + " " + m[6] + " " + m[7]
	tm, err := time.ParseInLocation(layout, s, time.UTC)
	if err != nil {
		return nil, false
	}
	return tm.Unix(), true
}

// GPS Location:  5231.957 N   718.577 E measured      1.856 secs ago
type gpsLatLonParser struct{}

var gpsLatLonRegexp = regexp.MustCompile(`^GPS Location: +(\d+\.\d+) N +([-]?\d+\.\d+) E measured +(\d+\.\d+) secs ago`)

func (gpsLatLonParser) key() string { return KeyGPSLatLon }

func (gpsLatLonParser) parse(line string) (any, bool) {
	m := gpsLatLonRegexp.FindStringSubmatch(line)
	if m == nil {
		return nil, false
	}
	lat, errLat := strconv.ParseFloat(m[1], 64)
	lon, errLon := strconv.ParseFloat(m[2], 64)
	if errLat != nil || errLon != nil {
		return nil, false
	}
	return LatLon{LatDDMM: lat, LonDDMM: lon}, true
}

// Hit Control-R to RESUME the mission
type menuParser struct{}

var menuRegexp = regexp.MustCompile(`^Hit Control-R to RESUME the mission`)

func (menuParser) key() string { return KeyMenu }

func (menuParser) parse(line string) (any, bool) {
	if menuRegexp.MatchString(line) {
		return true, true
	}
	return nil, false
}

// surface_N: Waiting for final GPS fix.
// Megabytes available n CF file system
type disconnectEventParser struct{}

var disconnectEventRegexp = regexp.MustCompile(`^(surface_\d+: Waiting for final GPS fix\.|Megabytes available n CF file system)`)

func (disconnectEventParser) key() string { return KeyDisconnectEvnt }

func (disconnectEventParser) parse(line string) (any, bool) {
	if disconnectEventRegexp.MatchString(line) {
		return true, true
	}
	return nil, false
}
