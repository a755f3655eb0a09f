// Package products parses Sentinel-1 product and orbit file names.
package products

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp layout embedded in Sentinel-1 file names.
const TimeLayout = "20060102T150405"

var (
	// ErrUnrecognized is returned when a name is not a Sentinel-1 product or orbit file.
	ErrUnrecognized = errors.New("unrecognized sentinel-1 file name")
	// ErrInvalidMission is returned for missions other than S1A and S1B.
	ErrInvalidMission = errors.New(`mission must be "S1A" or "S1B"`)
	// ErrInvalidOrbitType is returned for unknown orbit types.
	ErrInvalidOrbitType = errors.New(`orbit type must be "POEORB" or "RESORB"`)
)

// Mission identifies the Sentinel-1 satellite.
type Mission string

const (
	MissionS1A Mission = "S1A"
	MissionS1B Mission = "S1B"
)

// ParseMission validates a mission name. Lowercase input is accepted.
func ParseMission(s string) (Mission, error) {
	m := Mission(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMission, s)
	}
	return m, nil
}

// Valid returns true if the mission is a known value.
func (m Mission) Valid() bool {
	switch m {
	case MissionS1A, MissionS1B:
		return true
	default:
		return false
	}
}

// SerialID returns the platform serial identifier used by the GNSS hub ("1A", "1B").
func (m Mission) SerialID() string {
	return strings.TrimPrefix(string(m), "S")
}

// OrbitType is the kind of orbit ephemeris.
type OrbitType string

const (
	// Precise orbits (POE) are published roughly three weeks after acquisition.
	Precise OrbitType = "POEORB"
	// Restituted orbits (RES) are published within hours.
	Restituted OrbitType = "RESORB"
)

// ParseOrbitType accepts POEORB, RESORB, precise or restituted.
func ParseOrbitType(s string) (OrbitType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "poeorb", "precise", "aux_poeorb":
		return Precise, nil
	case "resorb", "restituted", "aux_resorb":
		return Restituted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidOrbitType, s)
	}
}

// ProductType returns the hub product type, e.g. "AUX_POEORB".
func (o OrbitType) ProductType() string {
	return "AUX_" + string(o)
}

var productRegex = regexp.MustCompile(
	`^(?P<mission>S1A|S1B)_(?P<beam>[\w\d]{2})_(?P<product_type>[\w_]{3})` +
		`(?P<resolution_class>[FHM_])_(?P<product_level>1|2)(?P<product_class>S|A)` +
		`(?P<polarization>[SDHV]{2})_(?P<start>[T\d]{15})_(?P<stop>[T\d]{15})` +
		`_(?P<orbit_number>\d{6})_(?P<datatake_id>[\d\w]{6})_(?P<product_unique_id>[\d\w]{4})`,
)

var orbitRegex = regexp.MustCompile(
	`^(?P<mission>S1A|S1B)_OPER_AUX_(?P<orbit_type>POEORB|RESORB)_OPOD_` +
		`(?P<created>[T\d]{15})_V(?P<start>[T\d]{15})_(?P<stop>[T\d]{15})`,
)

// Product is a parsed Sentinel-1 product name such as
// S1A_IW_SLC__1SDV_20180408T043025_20180408T043053_021371_024C9B_1B70.zip.
type Product struct {
	Filename        string
	Mission         Mission
	Beam            string
	ProductType     string
	ResolutionClass string
	Level           string
	Class           string
	Polarization    string
	Start           time.Time
	Stop            time.Time
	AbsoluteOrbit   int
	DatatakeID      string
	UniqueID        string
}

// ParseProduct parses a product name. Directory components are ignored.
func ParseProduct(name string) (Product, error) {
	base := filepath.Base(strings.TrimRight(name, `/\`))
	m := productRegex.FindStringSubmatch(base)
	if m == nil {
		return Product{}, fmt.Errorf("%w: %s", ErrUnrecognized, name)
	}
	g := groups(productRegex, m)

	start, err := time.Parse(TimeLayout, g["start"])
	if err != nil {
		return Product{}, fmt.Errorf("parse start time of %s: %w", base, err)
	}
	stop, err := time.Parse(TimeLayout, g["stop"])
	if err != nil {
		return Product{}, fmt.Errorf("parse stop time of %s: %w", base, err)
	}
	orbit, err := strconv.Atoi(g["orbit_number"])
	if err != nil {
		return Product{}, fmt.Errorf("parse orbit number of %s: %w", base, err)
	}

	return Product{
		Filename:        base,
		Mission:         Mission(g["mission"]),
		Beam:            g["beam"],
		ProductType:     g["product_type"],
		ResolutionClass: g["resolution_class"],
		Level:           g["product_level"],
		Class:           g["product_class"],
		Polarization:    g["polarization"],
		Start:           start,
		Stop:            stop,
		AbsoluteOrbit:   orbit,
		DatatakeID:      g["datatake_id"],
		UniqueID:        g["product_unique_id"],
	}, nil
}

// ID returns the product name without .SAFE or .zip.
func (p Product) ID() string {
	id := p.Filename
	for _, ext := range []string{".SAFE", ".zip", ".ZIP"} {
		id = strings.TrimSuffix(id, ext)
	}
	return id
}

// Date returns the acquisition start truncated to the day.
func (p Product) Date() time.Time {
	return truncateDay(p.Start)
}

// RelativeOrbit returns the track number (1-175) of the acquisition.
func (p Product) RelativeOrbit() int {
	offset := 73
	if p.Mission == MissionS1B {
		offset = 27
	}
	// Orbits before the offset wrap around to the end of the cycle.
	return ((p.AbsoluteOrbit-offset)%175+175)%175 + 1
}

func (p Product) String() string {
	return p.ID()
}

// Orbit is a parsed orbit file name such as
// S1A_OPER_AUX_POEORB_OPOD_20210318T121438_V20210225T225942_20210227T005942.EOF.
type Orbit struct {
	Filename  string    `json:"filename" yaml:"filename"`
	Mission   Mission   `json:"mission" yaml:"mission"`
	OrbitType OrbitType `json:"orbit_type" yaml:"orbit_type"`
	Created   time.Time `json:"created" yaml:"created"`
	Start     time.Time `json:"validity_start" yaml:"validity_start"`
	Stop      time.Time `json:"validity_stop" yaml:"validity_stop"`
}

// ParseOrbit parses an orbit file name or URL.
func ParseOrbit(name string) (Orbit, error) {
	base := name
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	m := orbitRegex.FindStringSubmatch(base)
	if m == nil {
		return Orbit{}, fmt.Errorf("%w: %s", ErrUnrecognized, name)
	}
	g := groups(orbitRegex, m)

	var ts [3]time.Time
	for i, key := range []string{"created", "start", "stop"} {
		t, err := time.Parse(TimeLayout, g[key])
		if err != nil {
			return Orbit{}, fmt.Errorf("parse %s time of %s: %w", key, base, err)
		}
		ts[i] = t
	}

	return Orbit{
		Filename:  base,
		Mission:   Mission(g["mission"]),
		OrbitType: OrbitType(g["orbit_type"]),
		Created:   ts[0],
		Start:     ts[1],
		Stop:      ts[2],
	}, nil
}

// Contains reports whether t falls inside the validity window, inclusive.
func (o Orbit) Contains(t time.Time) bool {
	return !t.Before(o.Start) && !t.After(o.Stop)
}

// Covers reports whether the validity window spans all of [t0, t1].
func (o Orbit) Covers(t0, t1 time.Time) bool {
	return !o.Start.After(t0) && !o.Stop.Before(t1)
}

// Date returns the validity start truncated to the day.
func (o Orbit) Date() time.Time {
	return truncateDay(o.Start)
}

func (o Orbit) String() string {
	return o.Filename
}

func groups(re *regexp.Regexp, match []string) map[string]string {
	out := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = match[i]
		}
	}
	return out
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
