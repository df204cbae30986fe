// Package session drives a blood-pressure measurement session end to end:
// it owns the session state machine, the debounce-based completion detection,
// the run sequencing for averaged measurements, and the observable state
// snapshot published to the rest of the application.
package session

import (
	"encoding/json"
	"sync"

	"github.com/cuffmon/cuffmon/internal/protocol"
)

// Mode selects how many device-side measurement runs make up one session.
type Mode int

const (
	// ModeSingle finalizes after one measurement run.
	ModeSingle Mode = iota
	// ModeAverage3 runs three measurements with a delay between them and
	// finalizes with their average.
	ModeAverage3
)

var modeNames = map[Mode]string{
	ModeSingle:   "single",
	ModeAverage3: "average3",
}

var modeFromName = map[string]Mode{
	"single":   ModeSingle,
	"average3": ModeAverage3,
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode converts a config string into a Mode.
func ParseMode(s string) (Mode, bool) {
	m, ok := modeFromName[s]
	return m, ok
}

func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *Mode) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := modeFromName[s]; ok {
		*m = v
	}
	return nil
}

// Snapshot is the consolidated observable state. It is replaced wholesale on
// every mutation, so observers always see a consistent version.
type Snapshot struct {
	Version      uint64            `json:"version"`
	Status       string            `json:"status"`
	LastReading  *protocol.Reading `json:"lastReading,omitempty"`
	IsConnected  bool              `json:"isConnected"`
	CanMeasure   bool              `json:"canMeasure"`
	IsMeasuring  bool              `json:"isMeasuring"`
	Mode         Mode              `json:"measurementMode"`
	DelaySeconds int               `json:"delayBetweenRunsSeconds"`
}

// clone returns a deep copy, duplicating pointer fields so the copy can be
// mutated independently of the original.
func (s Snapshot) clone() Snapshot {
	if s.LastReading != nil {
		r := *s.LastReading
		if r.MAP != nil {
			v := *r.MAP
			r.MAP = &v
		}
		if r.PulseRate != nil {
			v := *r.PulseRate
			r.PulseRate = &v
		}
		s.LastReading = &r
	}
	return s
}

// publisher holds the current Snapshot and fans out replacements to
// subscribers. Slow subscribers lose intermediate snapshots, never get a
// partially updated one.
type publisher struct {
	mu   sync.Mutex
	cur  Snapshot
	subs []chan Snapshot
}

func newPublisher(initial Snapshot) *publisher {
	return &publisher{cur: initial}
}

// Current returns the latest snapshot.
func (p *publisher) Current() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cur.clone()
}

// Subscribe registers a new observer. The current snapshot is delivered
// immediately; later snapshots are dropped if the observer falls behind.
func (p *publisher) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	ch <- p.cur.clone()
	p.mu.Unlock()
	return ch
}

// update applies mutate to a copy of the current snapshot, bumps the version,
// and publishes the replacement.
func (p *publisher) update(mutate func(*Snapshot)) {
	p.mu.Lock()
	next := p.cur.clone()
	mutate(&next)
	next.Version = p.cur.Version + 1
	p.cur = next
	for _, ch := range p.subs {
		select {
		case ch <- next.clone():
		default:
		}
	}
	p.mu.Unlock()
}
