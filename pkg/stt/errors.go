package stt

import "errors"

// ErrModelUnavailable reports a model file that is missing, unreadable, or
// failed to download. Fatal at call-answer time for the affected call only.
var ErrModelUnavailable = errors.New("stt: model unavailable")
