// Package messaging adapts the WhatsApp gateway and SMTP to the Sender
// contract used by automation actions. Delivery retries are the transport's concern.
package messaging

import (
	"context"
	"errors"
	"fmt"
)

// Message is a literal message. Subject is ignored by channels without one.
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// TemplateMessage references a named template rendered by the sender.
type TemplateMessage struct {
	Recipient string
	Template  string
	Params    map[string]string
}

// Sender delivers messages on one channel. Every failure is a *Error.
type Sender interface {
	SendMessage(ctx context.Context, msg Message) error
	SendTemplate(ctx context.Context, msg TemplateMessage) error
}

// ErrorCode classifies send failures.
type ErrorCode string

const (
	CodeNotConfigured    ErrorCode = "not_configured"
	CodeInvalidRecipient ErrorCode = "invalid_recipient"
	CodeUnknownTemplate  ErrorCode = "unknown_template"
	CodeRender           ErrorCode = "render_failed"
	CodeTransport        ErrorCode = "transport_error"
	CodeRejected         ErrorCode = "rejected"
)

// Error is the structured failure returned by senders.
type Error struct {
	Channel   string
	Code      ErrorCode
	Message   string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Channel, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Channel, e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func newError(channel string, code ErrorCode, message string, err error) *Error {
	return &Error{
		Channel:   channel,
		Code:      code,
		Message:   message,
		Retryable: code == CodeTransport,
		Err:       err,
	}
}

// Disabled is the Sender used for channels without configuration.
type Disabled struct {
	Channel string
}

func (d Disabled) SendMessage(context.Context, Message) error {
	return newError(d.Channel, CodeNotConfigured, "channel is not configured", nil)
}

func (d Disabled) SendTemplate(context.Context, TemplateMessage) error {
	return newError(d.Channel, CodeNotConfigured, "channel is not configured", nil)
}
