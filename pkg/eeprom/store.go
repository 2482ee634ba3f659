// Package eeprom provides the key-addressed byte store that setpoints persist
// into. On the appliance this is the MCU's non-volatile memory; on the host it
// is either process memory or a sqlite file.
package eeprom

import "errors"

// ErrNotFound is returned by Get for a key that was never written.
var ErrNotFound = errors.New("eeprom: key not found")

// Store is a key-addressed byte store. Every Put is independent: losing power
// between two Puts must not corrupt keys that were not being written.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// Ensure implementations satisfy Store.
var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQLite)(nil)
)
