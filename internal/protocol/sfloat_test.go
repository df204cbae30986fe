package protocol

import (
	"math"
	"testing"
)

func TestDecodeSFloat(t *testing.T) {
	tests := []struct {
		name string
		v    uint16
		want float64
	}{
		{"zero", 0x0000, 0},
		{"one", 0x0001, 1},
		{"mantissa 1200 exponent -1", 0xF4B0, 120.0},
		{"mantissa -1 exponent 0", 0x0FFF, -1.0},
		{"mantissa 800 exponent -1", 0xF320, 80.0},
		{"positive exponent", 0x200C, 1200},
		{"negative mantissa with exponent", 0xFF38, -20.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeSFloat(tt.v); got != tt.want {
				t.Errorf("DecodeSFloat(0x%04X) = %v, want %v", tt.v, got, tt.want)
			}
		})
	}
}

func TestDecodeSFloatReservedValues(t *testing.T) {
	if got := DecodeSFloat(0x07FF); !math.IsNaN(got) {
		t.Errorf("DecodeSFloat(NaN code) = %v, want NaN", got)
	}
	if got := DecodeSFloat(0x0800); !math.IsNaN(got) {
		t.Errorf("DecodeSFloat(NRes code) = %v, want NaN", got)
	}
	if got := DecodeSFloat(0x07FE); !math.IsInf(got, 1) {
		t.Errorf("DecodeSFloat(+Inf code) = %v, want +Inf", got)
	}
	if got := DecodeSFloat(0x0802); !math.IsInf(got, -1) {
		t.Errorf("DecodeSFloat(-Inf code) = %v, want -Inf", got)
	}
}

func TestDecodeSFloatReservedCodesIgnoreExponent(t *testing.T) {
	// The reserved codes are reserved for every exponent value.
	if got := DecodeSFloat(0x37FF); !math.IsNaN(got) {
		t.Errorf("DecodeSFloat(0x37FF) = %v, want NaN", got)
	}
}
