package withdrawal

// Status is the authoritative discriminator of a withdrawal request. The
// ordinal values are part of the wire contract consumed by the mobile clients
// and must not be reordered.
type Status int

const (
	StatusPending                 Status = 0
	StatusMoneySent               Status = 1
	StatusAwaitingOtpVerification Status = 2
	StatusFailed                  Status = 3
	StatusFailedOtp               Status = 4
)

// Terminal reports whether the orchestrator takes no further user-driven
// action for this status. Pending is terminal here: it resolves to a success
// screen and is later settled by the background settlement worker.
func (s Status) Terminal() bool {
	switch s {
	case StatusPending, StatusMoneySent, StatusFailed:
		return true
	case StatusAwaitingOtpVerification, StatusFailedOtp:
		return false
	}
	return false
}

// InFlightStatuses are the statuses that block a new submission for the same
// user. At most one withdrawal may hold one of these at a time.
func InFlightStatuses() []int {
	return []int{int(StatusAwaitingOtpVerification), int(StatusFailedOtp)}
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusMoneySent:
		return "money-sent"
	case StatusAwaitingOtpVerification:
		return "awaiting-otp-verification"
	case StatusFailed:
		return "failed"
	case StatusFailedOtp:
		return "failed-otp"
	}
	return "unknown"
}
