package repository

import (
	"errors"
	"time"
)

// ErrNotFound is returned by updates that target a missing record. Finders
// return nil, nil instead.
var ErrNotFound = errors.New("record not found")

const queryTimeout = 5 * time.Second
