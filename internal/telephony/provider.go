package telephony

import "context"

// VoiceProvider defines the provider-agnostic outbound-call interface used by
// the dialer.
//
// Rules:
// - No provider SDK or HTTP calls outside telephony adapters.
// - Keep request/response types provider-agnostic; the provider's raw
//   identifiers travel in ProviderCallID only.
type VoiceProvider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// PlaceCall attempts one outbound voice call.
	//
	// A *RejectionError means the provider refused to dial at all (the
	// destination failed its safety gate); the sequencer records that as a
	// skip. Any other problem while attempting the call is reported inside
	// the result with Success=false, never as an error, so a failed attempt
	// is indistinguishable from the provider's own failure report.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

// PlaceCallRequest carries one dial attempt.
type PlaceCallRequest struct {
	// To is the destination in canonical E.164 form.
	To string `json:"to"`

	// Message is synthesized to speech on answer.
	Message string `json:"message"`
}

// PlaceCallResult is the tagged outcome of a dial attempt.
type PlaceCallResult struct {
	Success bool `json:"success"`

	// ProviderCallID is set only on success.
	ProviderCallID string `json:"provider_call_id,omitempty"`

	// DurationSeconds is reported by the provider when available.
	DurationSeconds *int `json:"duration,omitempty"`

	// ErrorDetail is set only when Success is false.
	ErrorDetail string `json:"error,omitempty"`
}

// RejectionError is a refusal to dial, raised before any call is attempted.
// It is deliberately distinct from a transport failure: the dialer maps it to
// the skipped state rather than failed.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }
