package application

import (
	"encoding/json"
	"fmt"
	"math"
)

// Target is the observation payload of an appointment. The concrete type is
// determined by the appointment type.
type Target interface {
	TargetType() AppointmentType
	validate(vErr *ValidationError)
}

// Coordinate is an equatorial position.
type Coordinate struct {
	// RightAscension in hours, [0, 24).
	RightAscension float64 `json:"right_ascension"`
	// Declination in degrees, [-90, 90].
	Declination float64 `json:"declination"`
}

func (c Coordinate) validate(vErr *ValidationError, label string) {
	if math.IsNaN(c.RightAscension) || c.RightAscension < 0 || c.RightAscension >= 24 {
		vErr.Put(TagAppointmentTarget, fmt.Sprintf("%s right ascension must be within [0, 24) hours", label))
	}
	if math.IsNaN(c.Declination) || c.Declination < -90 || c.Declination > 90 {
		vErr.Put(TagAppointmentTarget, fmt.Sprintf("%s declination must be within [-90, 90] degrees", label))
	}
}

// PointTarget tracks a single fixed coordinate.
type PointTarget struct {
	Coordinate Coordinate `json:"coordinate"`
}

func (PointTarget) TargetType() AppointmentType { return TypePoint }

func (t PointTarget) validate(vErr *ValidationError) {
	t.Coordinate.validate(vErr, "point")
}

// CelestialBodyTarget tracks a named solar-system or catalog body.
type CelestialBodyTarget struct {
	Name string `json:"name"`
}

func (CelestialBodyTarget) TargetType() AppointmentType { return TypeCelestialBody }

func (t CelestialBodyTarget) validate(vErr *ValidationError) {
	if t.Name == "" {
		vErr.Put(TagAppointmentTarget, "celestial body name is required")
	}
}

// DriftScanTarget parks the dish at a fixed horizontal position.
type DriftScanTarget struct {
	Elevation float64 `json:"elevation"`
	Azimuth   float64 `json:"azimuth"`
}

func (DriftScanTarget) TargetType() AppointmentType { return TypeDriftScan }

func (t DriftScanTarget) validate(vErr *ValidationError) {
	if math.IsNaN(t.Elevation) || t.Elevation < 0 || t.Elevation > 90 {
		vErr.Put(TagAppointmentTarget, "elevation must be within [0, 90] degrees")
	}
	if math.IsNaN(t.Azimuth) || t.Azimuth < 0 || t.Azimuth >= 360 {
		vErr.Put(TagAppointmentTarget, "azimuth must be within [0, 360) degrees")
	}
}

// RasterScanTarget sweeps the rectangle spanned by two corners.
type RasterScanTarget struct {
	Corners [2]Coordinate `json:"corners"`
}

func (RasterScanTarget) TargetType() AppointmentType { return TypeRasterScan }

func (t RasterScanTarget) validate(vErr *ValidationError) {
	t.Corners[0].validate(vErr, "first corner")
	t.Corners[1].validate(vErr, "second corner")
	if t.Corners[0] == t.Corners[1] {
		vErr.Put(TagAppointmentTarget, "raster scan corners must differ")
	}
}

// FreeControlTarget hands the operator an ordered list of positions.
type FreeControlTarget struct {
	Coordinates []Coordinate `json:"coordinates"`
}

func (FreeControlTarget) TargetType() AppointmentType { return TypeFreeControl }

func (t FreeControlTarget) validate(vErr *ValidationError) {
	if len(t.Coordinates) == 0 {
		vErr.Put(TagAppointmentTarget, "free control requires at least one coordinate")
	}
	for i, c := range t.Coordinates {
		c.validate(vErr, fmt.Sprintf("coordinate %d", i+1))
	}
}

// validateTarget checks that the payload matches the appointment type and is
// well formed.
func validateTarget(typ AppointmentType, target Target, vErr *ValidationError) {
	if target == nil {
		vErr.Put(TagAppointmentTarget, "target is required")
		return
	}
	if target.TargetType() != typ {
		vErr.Put(TagAppointmentTarget, fmt.Sprintf("target of type %s does not match appointment type %s", target.TargetType(), typ))
		return
	}
	target.validate(vErr)
}

// EncodeTarget serializes a target for storage.
func EncodeTarget(target Target) (string, error) {
	if target == nil {
		return "", nil
	}
	raw, err := json.Marshal(target)
	if err != nil {
		return "", fmt.Errorf("encode %s target: %w", target.TargetType(), err)
	}
	return string(raw), nil
}

// DecodeTarget restores a target previously produced by EncodeTarget.
func DecodeTarget(typ AppointmentType, raw string) (Target, error) {
	if raw == "" {
		return nil, nil
	}
	var (
		target Target
		err    error
	)
	switch typ {
	case TypePoint:
		var t PointTarget
		err = json.Unmarshal([]byte(raw), &t)
		target = t
	case TypeCelestialBody:
		var t CelestialBodyTarget
		err = json.Unmarshal([]byte(raw), &t)
		target = t
	case TypeDriftScan:
		var t DriftScanTarget
		err = json.Unmarshal([]byte(raw), &t)
		target = t
	case TypeRasterScan:
		var t RasterScanTarget
		err = json.Unmarshal([]byte(raw), &t)
		target = t
	case TypeFreeControl:
		var t FreeControlTarget
		err = json.Unmarshal([]byte(raw), &t)
		target = t
	default:
		return nil, fmt.Errorf("decode target: unknown appointment type %q", typ)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s target: %w", typ, err)
	}
	return target, nil
}
