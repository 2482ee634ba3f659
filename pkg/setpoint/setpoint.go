// Package setpoint keeps the operator-tunable cycle durations, the case
// preset table and the start-on-sensor flag in an eeprom.Store.
//
// Setpoints live in memory as seconds and persist as int16 hundredths of a
// second. A setpoint is written back only when its rounded value differs from
// the last value written, which bounds wear on the store.
package setpoint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log"

	"github.com/chewxy/math32"

	"github.com/itohio/goanneal/pkg/config"
	"github.com/itohio/goanneal/pkg/eeprom"
)

// FailsafeValue marks a store written by this schema version.
const FailsafeValue int16 = 42

const (
	keyFailsafe      = "failsafe"
	keyStartOnSensor = "start_on_sensor"
)

// Kind selects one of the three setpoints.
type Kind int

const (
	Anneal Kind = iota
	Delay
	CaseDrop
	numKinds
)

var kindKeys = [numKinds]string{"anneal", "delay", "case_drop"}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return "unknown"
	}
	return kindKeys[k]
}

// Range is the inclusive range of a setpoint in seconds.
type Range struct {
	Min, Max float32
}

// Clamp limits v to the range.
func (r Range) Clamp(v float32) float32 {
	return math32.Min(math32.Max(v, r.Min), r.Max)
}

// Ranges of the setpoints, as offered by the settings menu.
var Ranges = [numKinds]Range{
	Anneal:   {0, 20},
	Delay:    {0, 20},
	CaseDrop: {0.5, 2},
}

// Store holds the live setpoints and their persisted form.
// It is not safe for concurrent use.
type Store struct {
	ee       eeprom.Store
	defaults [numKinds]int16

	value  [numKinds]float32
	stored [numKinds]int16

	presets       [NumPresets]Preset
	startOnSensor bool
	restored      bool
}

// Open loads setpoints, presets and the start-on-sensor flag from ee. When the
// failsafe marker is missing or wrong, every persisted value is rewritten with
// defaults. A stored zero setpoint is replaced by its default and an out of
// range one is clamped into its range.
func Open(ee eeprom.Store, defaults config.SetpointsConfig, startOnSensor bool) *Store {
	s := &Store{
		ee: ee,
		defaults: [numKinds]int16{
			Anneal:   defaults.AnnealDefault,
			Delay:    defaults.DelayDefault,
			CaseDrop: defaults.CaseDropDefault,
		},
	}

	marker, err := s.getInt16(keyFailsafe)
	if err != nil || marker != FailsafeValue {
		if err != nil && !errors.Is(err, eeprom.ErrNotFound) {
			log.Printf("setpoint: failed to read failsafe marker: %v", err)
		}
		log.Printf("setpoint: failsafe marker not found, restoring defaults")
		s.restore(startOnSensor)
		return s
	}

	for k := range numKinds {
		v, err := s.getInt16(kindKeys[k])
		if err == nil && v != 0 {
			// Stored values obey the same ranges as knob and menu edits
			if h := Hundredths(Ranges[k].Clamp(float32(v) / 100)); h != v {
				log.Printf("setpoint: stored %s %.2f s out of range, using %.2f s", k, float32(v)/100, float32(h)/100)
				v = h
				s.putInt16(kindKeys[k], v)
			}
		}
		if err != nil || v == 0 {
			v = s.defaults[k]
			s.putInt16(kindKeys[k], v)
		}
		s.stored[k] = v
		s.value[k] = float32(v) / 100
	}

	for i := range s.presets {
		p, err := s.loadPreset(i)
		if err != nil {
			log.Printf("setpoint: preset %d: %v, using default", i, err)
			p = s.defaultPreset(i)
			if err := s.storePreset(i, p); err != nil {
				log.Printf("setpoint: %v", err)
			}
		}
		s.presets[i] = p
	}

	b, err := s.ee.Get(keyStartOnSensor)
	if err != nil || len(b) != 1 {
		s.putBool(keyStartOnSensor, startOnSensor)
		s.startOnSensor = startOnSensor
	} else {
		s.startOnSensor = b[0] != 0
	}

	return s
}

// restore writes defaults for everything, then the failsafe marker.
func (s *Store) restore(startOnSensor bool) {
	s.restored = true
	for k := range numKinds {
		s.stored[k] = s.defaults[k]
		s.value[k] = float32(s.defaults[k]) / 100
		s.putInt16(kindKeys[k], s.stored[k])
	}
	for i := range s.presets {
		s.presets[i] = s.defaultPreset(i)
		if err := s.storePreset(i, s.presets[i]); err != nil {
			log.Printf("setpoint: %v", err)
		}
	}
	s.startOnSensor = startOnSensor
	s.putBool(keyStartOnSensor, startOnSensor)
	s.putInt16(keyFailsafe, FailsafeValue)
}

// Restored reports whether defaults were written at startup.
func (s *Store) Restored() bool {
	return s.restored
}

// Get returns the live value of a setpoint in seconds.
func (s *Store) Get(k Kind) float32 {
	return s.value[k]
}

// Set changes the live value of a setpoint, clamped to its range. It is not
// persisted until Sync.
func (s *Store) Set(k Kind, seconds float32) {
	s.value[k] = Ranges[k].Clamp(seconds)
}

// Adjust adds delta seconds to a setpoint, clamped to its range.
func (s *Store) Adjust(k Kind, delta float32) {
	s.Set(k, s.value[k]+delta)
}

// Anneal returns the anneal dwell setpoint in seconds.
func (s *Store) Anneal() float32 { return s.value[Anneal] }

// Delay returns the cool-down delay setpoint in seconds.
func (s *Store) Delay() float32 { return s.value[Delay] }

// CaseDrop returns the trapdoor open time in seconds.
func (s *Store) CaseDrop() float32 { return s.value[CaseDrop] }

// Hundredths returns the persisted form of seconds.
func Hundredths(seconds float32) int16 {
	return int16(math32.Floor(seconds*100 + 0.5))
}

// Sync persists a setpoint if it has drifted from the last written value.
// It reports whether a write happened.
func (s *Store) Sync(k Kind) bool {
	h := Hundredths(s.value[k])
	if h == s.stored[k] {
		return false
	}
	if err := s.putInt16(kindKeys[k], h); err != nil {
		return false
	}
	s.stored[k] = h
	return true
}

// SyncAll persists every drifted setpoint.
func (s *Store) SyncAll() {
	for k := range numKinds {
		s.Sync(k)
	}
}

// StartOnSensor reports whether the anneal cycle waits for the case sensor.
func (s *Store) StartOnSensor() bool {
	return s.startOnSensor
}

// SetStartOnSensor changes and persists the start-on-sensor flag.
func (s *Store) SetStartOnSensor(on bool) {
	if s.startOnSensor == on {
		return
	}
	s.startOnSensor = on
	s.putBool(keyStartOnSensor, on)
}

func (s *Store) getInt16(key string) (int16, error) {
	b, err := s.ee.Get(key)
	if err != nil {
		return 0, err
	}
	if len(b) != 2 {
		return 0, fmt.Errorf("%s: expected 2 bytes, got %d", key, len(b))
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (s *Store) putInt16(key string, v int16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	if err := s.ee.Put(key, b[:]); err != nil {
		log.Printf("setpoint: failed to write %s: %v", key, err)
		return err
	}
	return nil
}

func (s *Store) putBool(key string, v bool) {
	var b byte
	if v {
		b = 1
	}
	if err := s.ee.Put(key, []byte{b}); err != nil {
		log.Printf("setpoint: failed to write %s: %v", key, err)
	}
}
