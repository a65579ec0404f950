package llm

import "errors"

// ErrLLMFailure wraps any error surfaced by the model endpoint. ProcessMessage always recovers from it
// and returns a speakable fallback string.
var ErrLLMFailure = errors.New("llm: model invocation failed")
