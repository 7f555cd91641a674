package envelope

import "fmt"

// DecodeError reports a malformed inbound frame. The receive path logs it
// and drops the frame; it is never fatal to the connection.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode error: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }
