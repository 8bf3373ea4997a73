package mailbox

import (
	"errors"
	"fmt"
)

var (
	ErrMailboxFull          = errors.New("mailbox full")
	ErrMailboxClosed        = errors.New("mailbox closed")
	ErrMailboxEmpty         = errors.New("mailbox empty")
	ErrUnsupportedOperation = errors.New("unsupported mailbox operation")
)

// PanicError is returned by Message.Deliver when the behavior panicked.
type PanicError struct {
	Recovered any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("behavior panicked: %v", e.Recovered)
}

// DeliveryError is handed to the FailureHandler when a delivery fails.
type DeliveryError struct {
	Message Message
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery of %s to %s failed: %v", e.Message.Representation(), addressOf(e.Message), e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func addressOf(msg Message) string {
	if t := msg.Target(); t != nil {
		return t.Address()
	}
	return "<nil>"
}
