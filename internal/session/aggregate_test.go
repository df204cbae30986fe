package session

import (
	"math"
	"testing"

	"github.com/cuffmon/cuffmon/internal/protocol"
)

func ptr(v float64) *float64 { return &v }

func reading(sys, dia float64) protocol.Reading {
	return protocol.Reading{Systolic: sys, Diastolic: dia}
}

func TestPlausible(t *testing.T) {
	tests := []struct {
		name string
		r    protocol.Reading
		want bool
	}{
		{"typical", reading(120, 80), true},
		{"boundary low", reading(60, 40), true},
		{"boundary high", reading(260, 160), true},
		{"systolic too low", reading(59, 80), false},
		{"systolic too high", reading(261, 80), false},
		{"diastolic too low", reading(120, 39), false},
		{"diastolic too high", reading(120, 161), false},
		{"nan systolic", reading(math.NaN(), 80), false},
		{"inf diastolic", reading(120, math.Inf(1)), false},
		{"zero", reading(0, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Plausible(tt.r); got != tt.want {
				t.Errorf("Plausible(%v/%v) = %v, want %v", tt.r.Systolic, tt.r.Diastolic, got, tt.want)
			}
		})
	}
}

func TestPlausibleIgnoresMAPAndPulse(t *testing.T) {
	r := reading(120, 80)
	r.MAP = ptr(math.NaN())
	r.PulseRate = ptr(900)
	if !Plausible(r) {
		t.Error("MAP and pulse rate must not take part in the plausibility gate")
	}
}

func TestAverageOfThree(t *testing.T) {
	got := Average([]protocol.Reading{
		reading(118, 78),
		reading(122, 80),
		reading(120, 79),
	})
	if got.Systolic != 120 || got.Diastolic != 79 {
		t.Errorf("Average() = %v/%v, want 120/79", got.Systolic, got.Diastolic)
	}
}

func TestAverageFiltersImplausible(t *testing.T) {
	got := Average([]protocol.Reading{
		reading(118, 78),
		reading(300, 80), // noise
		reading(122, 80),
	})
	if got.Systolic != 120 || got.Diastolic != 79 {
		t.Errorf("Average() = %v/%v, want 120/79 over the plausible pair", got.Systolic, got.Diastolic)
	}
}

func TestAverageIdempotent(t *testing.T) {
	r := reading(121, 81)
	r.MAP = ptr(94)
	r.PulseRate = ptr(66)
	got := Average([]protocol.Reading{r})
	if got.Systolic != 121 || got.Diastolic != 81 {
		t.Errorf("Average(single) = %v/%v, want the element unchanged", got.Systolic, got.Diastolic)
	}
	if got.MAP == nil || *got.MAP != 94 || got.PulseRate == nil || *got.PulseRate != 66 {
		t.Errorf("Average(single) MAP/pulse = %v/%v, want 94/66", got.MAP, got.PulseRate)
	}
}

func TestAverageSentinelWhenNothingPlausible(t *testing.T) {
	got := Average([]protocol.Reading{
		reading(300, 80),
		reading(310, 85),
	})
	if got.Systolic != 0 || got.Diastolic != 0 || got.MAP != nil || got.PulseRate != nil {
		t.Errorf("Average() = %+v, want zero sentinel", got)
	}

	if got := Average(nil); got.Systolic != 0 || got.Diastolic != 0 {
		t.Errorf("Average(nil) = %+v, want zero sentinel", got)
	}
}

func TestAverageMAPOnlyOverPresentValues(t *testing.T) {
	r1 := reading(118, 78)
	r1.MAP = ptr(90)
	r2 := reading(122, 80) // no MAP
	r3 := reading(120, 79)
	r3.MAP = ptr(94)

	got := Average([]protocol.Reading{r1, r2, r3})
	if got.MAP == nil || *got.MAP != 92 {
		t.Errorf("MAP = %v, want 92 (mean of the two present values)", got.MAP)
	}
}

func TestAveragePulseRateRangeGate(t *testing.T) {
	r1 := reading(118, 78)
	r1.PulseRate = ptr(60)
	r2 := reading(122, 80)
	r2.PulseRate = ptr(300) // out of range, excluded
	r3 := reading(120, 79)
	r3.PulseRate = ptr(70)

	got := Average([]protocol.Reading{r1, r2, r3})
	if got.PulseRate == nil || *got.PulseRate != 65 {
		t.Errorf("PulseRate = %v, want 65", got.PulseRate)
	}

	// All rates out of range: the average carries no pulse rate.
	r1.PulseRate = ptr(10)
	r3.PulseRate = ptr(500)
	got = Average([]protocol.Reading{r1, r3})
	if got.PulseRate != nil {
		t.Errorf("PulseRate = %v, want nil when every value is out of range", *got.PulseRate)
	}
}
