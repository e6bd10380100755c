package bindings

import "errors"

// Node handle error categories.
var (
	ErrNodeCreation  = errors.New("node creation failed")
	ErrConfiguration = errors.New("configuration failed")
	ErrStart         = errors.New("start failed")
	ErrStop          = errors.New("stop failed")
	ErrNodeRunning   = errors.New("node is running")
	ErrNodeClosed    = errors.New("node is closed")
	ErrEmbeddedNul   = errors.New("string contains an embedded NUL")
)
