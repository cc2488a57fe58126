package credentials

// StoreError indicates a credential storage failure.
type StoreError struct {
	Operation string // "load", "save", "clear"
	Backend   string // "file", "redis"
	Cause     error
}

func (e *StoreError) Error() string {
	msg := e.Operation + " credentials"
	if e.Backend != "" {
		msg += " (" + e.Backend + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
