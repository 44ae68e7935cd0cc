package vision

// Error is the domain error for image analysis. Message is either a fixed
// diagnostic or the upstream status message, verbatim.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }
