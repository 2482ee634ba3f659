package setpoint

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// NumPresets is the number of case preset slots.
	NumPresets = 10
	// NameLen is the maximum preset name length.
	NameLen = 12

	presetSize = NameLen + 1 + 4
)

// PresetRange bounds a preset's anneal time.
var PresetRange = Range{0, 200}

// Preset is a named anneal time for one case type.
type Preset struct {
	Name string
	Time float32 // seconds
}

const nameAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789. "

// CleanName replaces characters outside the menu alphabet with spaces and
// truncates to NameLen.
func CleanName(name string) string {
	b := []byte(name)
	if len(b) > NameLen {
		b = b[:NameLen]
	}
	for i, c := range b {
		if strings.IndexByte(nameAlphabet, c) < 0 {
			b[i] = ' '
		}
	}
	return string(b)
}

// MarshalBinary encodes the preset as a NUL-padded name followed by a
// little-endian float32.
func (p Preset) MarshalBinary() ([]byte, error) {
	b := make([]byte, presetSize)
	copy(b[:NameLen], CleanName(p.Name))
	binary.LittleEndian.PutUint32(b[NameLen+1:], math.Float32bits(p.Time))
	return b, nil
}

// UnmarshalBinary decodes a preset written by MarshalBinary.
func (p *Preset) UnmarshalBinary(b []byte) error {
	if len(b) != presetSize {
		return fmt.Errorf("expected %d bytes, got %d", presetSize, len(b))
	}
	name := b[:NameLen+1]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	t := math.Float32frombits(binary.LittleEndian.Uint32(b[NameLen+1:]))
	if math.IsNaN(float64(t)) {
		return fmt.Errorf("time is NaN")
	}
	p.Name = CleanName(string(name))
	p.Time = PresetRange.Clamp(t)
	return nil
}

// Presets returns a copy of the preset table.
func (s *Store) Presets() []Preset {
	out := make([]Preset, NumPresets)
	copy(out, s.presets[:])
	return out
}

// Preset returns one slot.
func (s *Store) Preset(i int) (Preset, error) {
	if err := checkSlot(i); err != nil {
		return Preset{}, err
	}
	return s.presets[i], nil
}

// SavePreset overwrites a slot and persists it.
func (s *Store) SavePreset(i int, p Preset) error {
	if err := checkSlot(i); err != nil {
		return err
	}
	p.Name = CleanName(p.Name)
	p.Time = PresetRange.Clamp(p.Time)
	s.presets[i] = p
	return s.storePreset(i, p)
}

// UsePreset saves a slot and makes its time the live anneal setpoint.
func (s *Store) UsePreset(i int, p Preset) error {
	if err := s.SavePreset(i, p); err != nil {
		return err
	}
	s.Set(Anneal, s.presets[i].Time)
	return nil
}

// StoreCurrent writes the live anneal setpoint into a slot's time.
func (s *Store) StoreCurrent(i int) error {
	if err := checkSlot(i); err != nil {
		return err
	}
	p := s.presets[i]
	p.Time = s.value[Anneal]
	return s.SavePreset(i, p)
}

func checkSlot(i int) error {
	if i < 0 || i >= NumPresets {
		return fmt.Errorf("preset slot %d out of range", i)
	}
	return nil
}

func presetKey(i int) string {
	return "preset." + strconv.Itoa(i)
}

func (s *Store) defaultPreset(i int) Preset {
	return Preset{
		Name: "Case " + strconv.Itoa(i+1),
		Time: float32(s.defaults[Anneal]) / 100,
	}
}

func (s *Store) loadPreset(i int) (Preset, error) {
	b, err := s.ee.Get(presetKey(i))
	if err != nil {
		return Preset{}, err
	}
	var p Preset
	if err := p.UnmarshalBinary(b); err != nil {
		return Preset{}, err
	}
	return p, nil
}

func (s *Store) storePreset(i int, p Preset) error {
	b, _ := p.MarshalBinary()
	if err := s.ee.Put(presetKey(i), b); err != nil {
		return fmt.Errorf("failed to write preset %d: %w", i, err)
	}
	return nil
}
