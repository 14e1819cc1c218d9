package proxy

// Outcome labels how a request ended, in both log events and metrics.
type Outcome string

const (
	OutcomeClosed     Outcome = "closed"
	OutcomeTimeout    Outcome = "timeout"
	OutcomeError      Outcome = "error"
	OutcomeMalformed  Outcome = "malformed"
	OutcomeCompleted  Outcome = "completed"
	OutcomeFailed     Outcome = "failed"
	OutcomeBadRequest Outcome = "bad_request"
)

// Log messages for request lifecycle transitions.
const (
	eventTunnelRequested      = "tunnel requested"
	eventTunnelConnecting     = "tunnel connecting"
	eventTunnelEstablished    = "tunnel established"
	eventTunnelClosed         = "tunnel closed"
	eventTunnelFailed         = "tunnel failed"
	eventPassthroughCompleted = "passthrough completed"
	eventPassthroughFailed    = "passthrough failed"
	eventBadRequest           = "bad request"
)
