// Package protocol implements the wire format of the Blood Pressure Service
// measurement characteristic and the vendor control-point commands.
package protocol

import "math"

// IEEE-11073 reserved SFLOAT mantissa values.
const (
	sfloatNaN    = 0x07FF
	sfloatNRes   = 0x0800
	sfloatPosInf = 0x07FE
	sfloatNegInf = 0x0802
)

// DecodeSFloat decodes a 16-bit IEEE-11073 SFLOAT: low 12 bits are a
// two's-complement mantissa, high 4 bits a two's-complement base-10 exponent.
// The reserved mantissa codes decode to NaN and the infinities.
func DecodeSFloat(v uint16) float64 {
	mantissa := int(v & 0x0FFF)
	switch mantissa {
	case sfloatNaN, sfloatNRes:
		return math.NaN()
	case sfloatPosInf:
		return math.Inf(1)
	case sfloatNegInf:
		return math.Inf(-1)
	}

	exponent := int(v >> 12)
	if exponent >= 8 {
		exponent -= 16
	}
	if mantissa >= 0x0800 {
		mantissa -= 0x1000
	}
	return float64(mantissa) * math.Pow10(exponent)
}
