// Package types holds the wire envelopes shared by every HTTP response the
// engine emits.
package types

// SuccessEnvelope wraps successful payloads under a single data key so UI
// clients decode one shape.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError is the public face of a failure; Details is populated only for
// codes whose metadata allows it.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
