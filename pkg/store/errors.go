package store

import "errors"

// ErrWrongType is returned when a command expects one value variant (a
// string or a sorted set) at a key that holds the other.
var ErrWrongType = errors.New("store: key holds a value of the wrong type")
