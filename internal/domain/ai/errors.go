package ai

import "errors"

// ErrQuotaExceeded indicates the AI provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("ai quota exceeded")

// ErrMalformedResponse indicates the model answered with JSON that does not follow the schema.
var ErrMalformedResponse = errors.New("ai response does not match schema")
