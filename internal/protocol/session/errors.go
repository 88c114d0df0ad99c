package session

import (
	"errors"
	"fmt"

	"github.com/danmuck/amulectl/internal/protocol/schema"
)

var (
	ErrTransport          = errors.New("session: transport error")
	ErrNotConnected       = errors.New("session: not connected")
	ErrSessionClosed      = errors.New("session: connection manually closed")
	ErrAuthFailed         = errors.New("session: authentication failed")
	ErrReconnectExhausted = errors.New("session: unable to reconnect")
	ErrAddressRequired    = errors.New("session: address required")
)

// TransportError wraps socket failures. errors.Is matches ErrTransport and the cause.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("session: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrTransport}
	}
	return []error{ErrTransport, e.Err}
}

// AuthError reports the handshake step that rejected the session.
// Opcode is the unexpected reply opcode, Reason the daemon's text if it sent one.
type AuthError struct {
	Step   AuthState
	Opcode uint8
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	msg := fmt.Sprintf("session: authentication failed in state %s: reply %s", e.Step, schema.DefaultTable().OpcodeName(e.Opcode))
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AuthError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAuthFailed}
	}
	return []error{ErrAuthFailed, e.Err}
}
