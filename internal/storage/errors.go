package storage

import "errors"

// ErrStoreClosed is returned by operations on a store after Close.
var ErrStoreClosed = errors.New("violation store is closed")
