package controller

import "errors"

// ErrAudioFormatError reports an inbound RTP frame with the wrong payload
// type or length.
var ErrAudioFormatError = errors.New("controller: audio format error")
