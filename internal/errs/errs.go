package errs

// ErrorKind identifies a kind of error.
// fully support for errors.Is and errors.As.
type ErrorKind string

const (
	// ConfigDefect is a broken input or setting; it aborts the whole run before any network activity.
	ConfigDefect = ErrorKind("configuration defect")

	ApprovalFailed      = ErrorKind("approval failed")
	AttemptsExhausted   = ErrorKind("attempts exhausted")
	TiersExhausted      = ErrorKind("all tiers exhausted")
	Reverted            = ErrorKind("transaction reverted")
	ConfirmationTimeout = ErrorKind("confirmation timeout")
	NoQuorum            = ErrorKind("no quorum")
)

// Error satisfies the error interface and prints human-readable errors.
func (e ErrorKind) Error() string {
	return string(e)
}
