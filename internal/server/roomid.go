// Package server generates short room identifiers for joins that do not
// supply one.
package server

import (
	nanoid "github.com/jaevor/go-nanoid"
)

// roomIDAlphabet keeps generated ids easy to read aloud and retype: digits
// plus uppercase letters, base-36.
const roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// newRoomIDGenerator returns a function producing random room ids of the
// given length. Collision probability is negligible over a room's practical
// lifetime; the registry still retries against live rooms.
func newRoomIDGenerator(length int) (func() string, error) {
	return nanoid.CustomASCII(roomIDAlphabet, length)
}
