// Package fcm adapts Firebase Cloud Messaging to the queue's push boundary.
package fcm

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
)

// Sender delivers multicast pushes through Firebase Cloud Messaging.
type Sender struct {
	client *messaging.Client
}

// NewSender builds a sender from an initialized Firebase app.
func NewSender(ctx context.Context, app *firebase.App) (*Sender, error) {
	if app == nil {
		return nil, errors.New("firebase app is required")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("messaging client: %w", err)
	}
	return &Sender{client: client}, nil
}

// SendMulticast pushes one data payload to every token and reports how many
// deliveries FCM accepted.
func (s *Sender) SendMulticast(ctx context.Context, data map[string]string, tokens []string) (int, error) {
	if s == nil || s.client == nil {
		return 0, errors.New("messaging client is not configured")
	}
	if len(tokens) == 0 {
		return 0, nil
	}
	response, err := s.client.SendEachForMulticast(ctx, &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   data,
	})
	if err != nil {
		return 0, fmt.Errorf("send multicast: %w", err)
	}
	return response.SuccessCount, nil
}
