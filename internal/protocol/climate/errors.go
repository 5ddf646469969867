package climate

import "errors"

var (
	ErrTooShort       = errors.New("climate: frame shorter than minimum")
	ErrBadHeader      = errors.New("climate: missing frame header byte")
	ErrLengthMismatch = errors.New("climate: declared length does not match frame")

	ErrNoZones          = errors.New("climate: zone list empty")
	ErrTooManyZones     = errors.New("climate: zone list exceeds limit")
	ErrDuplicateZone    = errors.New("climate: duplicate zone id")
	ErrZoneOutOfRange   = errors.New("climate: zone id out of range")
	ErrTemperatureRange = errors.New("climate: temperature out of range")
)
