package rtcoord

import "errors"

// ErrNotRunning is returned by operations that require [Runtime.Start] to
// have been called first.
var ErrNotRunning = errors.New("rtcoord: runtime is not running")

// ErrAlreadyStarted is returned by a second call to [Runtime.Start].
var ErrAlreadyStarted = errors.New("rtcoord: runtime already started")
