package session

import (
	"math"

	"github.com/cuffmon/cuffmon/internal/protocol"
)

// Physiological plausibility ranges. Readings outside them are sensor noise
// or cuff misplacement, not real measurements.
const (
	minSystolic  = 60
	maxSystolic  = 260
	minDiastolic = 40
	maxDiastolic = 160
	minPulseRate = 20
	maxPulseRate = 220
)

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Plausible reports whether a reading's pressures are physiologically usable.
// MAP and pulse rate do not take part in the gate.
func Plausible(r protocol.Reading) bool {
	return finite(r.Systolic) && finite(r.Diastolic) &&
		r.Systolic >= minSystolic && r.Systolic <= maxSystolic &&
		r.Diastolic >= minDiastolic && r.Diastolic <= maxDiastolic
}

// Average combines the readings of one session into a single result. Only
// plausible readings contribute; when none are, the zero Reading is returned.
// MAP is averaged over the plausible readings that carry a finite MAP, pulse
// rate over those with a finite rate within the physiological range; either
// is absent when no reading qualifies.
func Average(readings []protocol.Reading) protocol.Reading {
	var plausible []protocol.Reading
	for _, r := range readings {
		if Plausible(r) {
			plausible = append(plausible, r)
		}
	}

	if len(plausible) == 0 {
		return protocol.Reading{}
	}

	var sys, dia float64
	var mapSum, hrSum float64
	var mapN, hrN int
	for _, r := range plausible {
		sys += r.Systolic
		dia += r.Diastolic
		if r.MAP != nil && finite(*r.MAP) {
			mapSum += *r.MAP
			mapN++
		}
		if r.PulseRate != nil && finite(*r.PulseRate) &&
			*r.PulseRate >= minPulseRate && *r.PulseRate <= maxPulseRate {
			hrSum += *r.PulseRate
			hrN++
		}
	}

	n := float64(len(plausible))
	out := protocol.Reading{
		Systolic:  sys / n,
		Diastolic: dia / n,
	}
	if mapN > 0 {
		v := mapSum / float64(mapN)
		out.MAP = &v
	}
	if hrN > 0 {
		v := hrSum / float64(hrN)
		out.PulseRate = &v
	}
	return out
}
