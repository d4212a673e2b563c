// Package mailer sends transactional email through a pluggable provider.
package mailer

import (
	"context"
	"errors"
)

var ErrNoRecipients = errors.New("mailer: message has no recipients")

// Message is one outgoing email.
type Message struct {
	From    string
	To      []string
	Subject string
	HTML    string
	Text    string
}

type SendResult struct {
	ProviderMessageID string
}

// Provider delivers a message through one backend.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (SendResult, error)
}

type Mailer struct {
	provider    Provider
	fromAddress string
}

func New(provider Provider, fromAddress string) *Mailer {
	return &Mailer{
		provider:    provider,
		fromAddress: fromAddress,
	}
}

// Send fills in the default sender when msg.From is empty.
func (m *Mailer) Send(ctx context.Context, msg Message) (SendResult, error) {
	if len(msg.To) == 0 {
		return SendResult{}, ErrNoRecipients
	}
	if msg.From == "" {
		msg.From = m.fromAddress
	}
	return m.provider.Send(ctx, msg)
}

func (m *Mailer) ProviderName() string {
	return m.provider.Name()
}
