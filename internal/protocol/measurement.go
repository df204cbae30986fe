package protocol

import (
	"encoding/binary"
	"errors"
)

// Measurement characteristic flag bits.
const (
	flagTimestamp = 1 << 1
	flagPulseRate = 1 << 2
)

// ErrShortPayload is returned when a measurement notification carries fewer
// bytes than the mandatory flags + three SFLOAT fields.
var ErrShortPayload = errors.New("protocol: insufficient data in measurement payload")

// Reading is a single decoded blood-pressure measurement. Pressures are in
// mmHg, pulse rate in bpm. MAP and PulseRate are nil when the peripheral did
// not report them.
type Reading struct {
	Systolic  float64  `json:"systolic"`
	Diastolic float64  `json:"diastolic"`
	MAP       *float64 `json:"map,omitempty"`
	PulseRate *float64 `json:"pulseRate,omitempty"`
}

// DecodeMeasurement decodes a Blood Pressure Measurement notification.
//
//	byte 0:    flags
//	bytes 1-2: systolic (SFLOAT, little-endian)
//	bytes 3-4: diastolic
//	bytes 5-6: mean arterial pressure
//	+7 bytes:  timestamp, present iff flag bit 1
//	+2 bytes:  pulse rate (SFLOAT), present iff flag bit 2
//
// The pulse rate is decoded only when the payload actually carries it; a
// set flag with a truncated payload yields a reading without pulse rate
// rather than an error.
func DecodeMeasurement(data []byte) (Reading, error) {
	if len(data) < 7 {
		return Reading{}, ErrShortPayload
	}

	flags := data[0]
	mp := DecodeSFloat(binary.LittleEndian.Uint16(data[5:7]))
	r := Reading{
		Systolic:  DecodeSFloat(binary.LittleEndian.Uint16(data[1:3])),
		Diastolic: DecodeSFloat(binary.LittleEndian.Uint16(data[3:5])),
		MAP:       &mp,
	}

	offset := 7
	if flags&flagTimestamp != 0 {
		offset += 7
	}
	if flags&flagPulseRate != 0 && len(data) >= offset+2 {
		hr := DecodeSFloat(binary.LittleEndian.Uint16(data[offset : offset+2]))
		r.PulseRate = &hr
	}
	return r, nil
}

// EncodeStart returns the vendor control-point command that triggers a
// measurement run.
func EncodeStart() []byte { return []byte{0xF1, 0x01} }

// EncodeCancel returns the vendor control-point command that aborts the
// current measurement run.
func EncodeCancel() []byte { return []byte{0xF1, 0x02} }
