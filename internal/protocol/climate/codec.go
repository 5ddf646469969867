package climate

import (
	"fmt"
	"math"
)

const (
	FrameESC byte = 0x1B
	FrameETB byte = 0x17

	zoneMarker byte = 0x10

	headerLen   = 6
	zoneBlock   = 5
	minFrameLen = 6

	// MaxZonesPerCommand bounds one outbound command frame.
	MaxZonesPerCommand = 10

	// MinTempC/MaxTempC bound the commandable setpoint domain in °C.
	MinTempC = -40.0
	MaxTempC = 50.0

	// SetpointStep is the setpoint quantization in °C.
	SetpointStep = 0.5
)

// unitID is the 3-byte unit identity carried in every command header.
var unitID = [3]byte{0x4A, 0x41, 0x31}

// ZoneID addresses one climate segment. Valid ids are 1-255.
type ZoneID uint8

// Status is the device-reported portion of one decoded status frame.
type Status struct {
	ExternalTempC  float64
	OverTemp       bool
	PressureFault  bool
	VoltageFault   bool
	AirflowBlocked bool
}

// RoundSetpoint quantizes a requested temperature to the nearest half degree.
func RoundSetpoint(tempC float64) float64 {
	return math.Round(tempC*2) / 2
}

// TempToRaw converts °C to the 16-bit wire encoding.
func TempToRaw(tempC float64) uint16 {
	return uint16(math.Round((tempC + 50.0) * 500.0))
}

// RawToTemp converts the 16-bit wire encoding back to °C.
func RawToTemp(raw uint16) float64 {
	return float64(raw)/500.0 - 50.0
}

// EncodeSetTemperature builds one command frame targeting the given zones.
// The temperature is rounded to the nearest half degree before validation.
func EncodeSetTemperature(zones []ZoneID, tempC float64) ([]byte, error) {
	if len(zones) == 0 {
		return nil, ErrNoZones
	}
	if len(zones) > MaxZonesPerCommand {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyZones, len(zones), MaxZonesPerCommand)
	}
	seen := make(map[ZoneID]struct{}, len(zones))
	for _, zone := range zones {
		if zone == 0 {
			return nil, ErrZoneOutOfRange
		}
		if _, dup := seen[zone]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateZone, zone)
		}
		seen[zone] = struct{}{}
	}
	rounded := RoundSetpoint(tempC)
	if rounded < MinTempC || rounded > MaxTempC {
		return nil, fmt.Errorf("%w: %.1f", ErrTemperatureRange, rounded)
	}

	raw := TempToRaw(rounded)
	buf := make([]byte, 0, headerLen+zoneBlock*len(zones)+1)
	buf = append(buf, FrameESC, 0, unitID[0], unitID[1], unitID[2], 0x00)
	for _, zone := range zones {
		buf = append(buf, zoneMarker, byte(zone), byte(raw&0xFF), byte(raw>>8), 0x00)
	}
	buf = append(buf, FrameETB)
	buf[1] = byte(len(buf))
	return buf, nil
}

// DecodeSetTemperature parses one command frame back into its zones and
// setpoint. The device simulator and round-trip tests use it; the real
// unit is the normal consumer of command frames.
func DecodeSetTemperature(frame []byte) ([]ZoneID, float64, error) {
	if len(frame) < headerLen+zoneBlock+1 {
		return nil, 0, fmt.Errorf("%w: %d bytes", ErrTooShort, len(frame))
	}
	if frame[0] != FrameESC {
		return nil, 0, fmt.Errorf("%w: 0x%02X", ErrBadHeader, frame[0])
	}
	if int(frame[1]) != len(frame) {
		return nil, 0, fmt.Errorf("%w: declared=%d actual=%d", ErrLengthMismatch, frame[1], len(frame))
	}
	body := frame[headerLen : len(frame)-1]
	if len(body)%zoneBlock != 0 {
		return nil, 0, fmt.Errorf("%w: ragged zone section", ErrLengthMismatch)
	}
	var zones []ZoneID
	var raw uint16
	for i := 0; i < len(body); i += zoneBlock {
		if body[i] != zoneMarker {
			return nil, 0, fmt.Errorf("%w: missing zone marker at %d", ErrBadHeader, headerLen+i)
		}
		zones = append(zones, ZoneID(body[i+1]))
		raw = uint16(body[i+3])<<8 | uint16(body[i+2])
	}
	return zones, RawToTemp(raw), nil
}

// DecodeStatus parses one complete inbound status frame.
func DecodeStatus(frame []byte) (Status, error) {
	if len(frame) < minFrameLen {
		return Status{}, fmt.Errorf("%w: %d bytes", ErrTooShort, len(frame))
	}
	if frame[0] != FrameESC {
		return Status{}, fmt.Errorf("%w: 0x%02X", ErrBadHeader, frame[0])
	}
	if int(frame[1]) != len(frame) {
		return Status{}, fmt.Errorf("%w: declared=%d actual=%d", ErrLengthMismatch, frame[1], len(frame))
	}
	raw := uint16(frame[3])<<8 | uint16(frame[2])
	flags := frame[4]
	return Status{
		ExternalTempC:  RawToTemp(raw),
		OverTemp:       flags&0x01 != 0,
		PressureFault:  flags&0x02 != 0,
		VoltageFault:   flags&0x04 != 0,
		AirflowBlocked: flags&0x08 != 0,
	}, nil
}

// EncodeStatus builds a minimal status frame, used by the bench simulator
// and by round-trip tests. Reserved flag bits are written as zero.
func EncodeStatus(status Status) []byte {
	raw := TempToRaw(status.ExternalTempC)
	var flags byte
	if status.OverTemp {
		flags |= 0x01
	}
	if status.PressureFault {
		flags |= 0x02
	}
	if status.VoltageFault {
		flags |= 0x04
	}
	if status.AirflowBlocked {
		flags |= 0x08
	}
	buf := []byte{FrameESC, 0, byte(raw & 0xFF), byte(raw >> 8), flags, FrameETB}
	buf[1] = byte(len(buf))
	return buf
}
