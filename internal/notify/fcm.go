package notify

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/agentalign/internal/hitl"
)

// FCMNotifier pushes escalations to reviewer devices via Firebase Cloud
// Messaging. Without credentials it degrades to a mock that logs instead of
// sending, so development environments work without a Firebase project.
type FCMNotifier struct {
	client *messaging.Client
	tokens []string
	mock   bool
}

// NewFCMNotifier creates an FCM channel. If credentialsPath is empty or the
// file does not exist, a mock channel is returned.
func NewFCMNotifier(ctx context.Context, credentialsPath string, tokens []string) (*FCMNotifier, error) {
	if credentialsPath == "" {
		log.Warn().Msg("No FCM credentials path provided, using mock backend")
		return &FCMNotifier{mock: true, tokens: tokens}, nil
	}

	if _, err := os.Stat(credentialsPath); os.IsNotExist(err) {
		log.Warn().
			Str("credentials_path", credentialsPath).
			Msg("FCM credentials file not found, using mock backend")
		return &FCMNotifier{mock: true, tokens: tokens}, nil
	}

	opt := option.WithCredentialsFile(credentialsPath)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}

	log.Info().Int("token_count", len(tokens)).Msg("Initialized FCM notifier")

	return &FCMNotifier{
		client: client,
		tokens: tokens,
		mock:   false,
	}, nil
}

// Send pushes the escalation to all reviewer devices. Escalations are always
// high priority.
func (f *FCMNotifier) Send(ctx context.Context, request *hitl.Request) error {
	if len(f.tokens) == 0 {
		log.Warn().Msg("No FCM device tokens configured, skipping escalation")
		return nil
	}

	title := fmt.Sprintf("Human review required: %s", request.TaskID)
	data := map[string]string{
		"request_id":        request.RequestID,
		"task_id":           request.TaskID,
		"alignment_state":   request.AlignmentState,
		"escalation_reason": string(request.EscalationReason),
	}

	if f.mock {
		for _, token := range f.tokens {
			log.Info().
				Str("backend", "fcm_mock").
				Str("device_token", maskToken(token)).
				Str("title", title).
				Str("body", request.Summary).
				Str("request_id", request.RequestID).
				Msg("Mock FCM escalation (not actually sent)")
		}
		return nil
	}

	msg := &messaging.MulticastMessage{
		Tokens: f.tokens,
		Notification: &messaging.Notification{
			Title: title,
			Body:  request.Summary,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
		},
	}

	response, err := f.client.SendEachForMulticast(ctx, msg)
	if err != nil {
		return fmt.Errorf("failed to send FCM multicast: %w", err)
	}

	log.Info().
		Int("success_count", response.SuccessCount).
		Int("failure_count", response.FailureCount).
		Int("total", len(f.tokens)).
		Str("request_id", request.RequestID).
		Msg("Sent FCM escalation")

	if response.SuccessCount == 0 {
		return fmt.Errorf("all %d FCM sends failed", len(f.tokens))
	}
	return nil
}

// Name returns the channel name.
func (f *FCMNotifier) Name() string {
	if f.mock {
		return "fcm_mock"
	}
	return "fcm"
}

// IsMock reports whether the channel logs instead of sending.
func (f *FCMNotifier) IsMock() bool {
	return f.mock
}

// maskToken hides most of a device token for logs.
func maskToken(token string) string {
	if len(token) <= 8 {
		return "***"
	}
	return token[:4] + "..." + token[len(token)-4:]
}
