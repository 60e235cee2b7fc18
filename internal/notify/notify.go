// Package notify sends operator notifications to the notification webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Notifier delivers best-effort messages to the operator. Implementations
// never return delivery errors to the caller.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

type Payload struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type Webhook struct {
	url     string
	apiKey  string
	email   string
	client  *http.Client
	limiter *rate.Limiter
}

func NewWebhook(cfg config.Notification, client *http.Client) *Webhook {
	if client == nil {
		client = platform.NewHTTPClient(10 * time.Second)
	}
	limit := rate.Limit(cfg.RatePerSecond)
	if cfg.RatePerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Webhook{
		url:     cfg.APIURL,
		apiKey:  cfg.APIKey,
		email:   cfg.OperatorEmail,
		client:  client,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (w *Webhook) Enabled() bool { return w.url != "" }

// Notify sends message and logs any failure.
func (w *Webhook) Notify(ctx context.Context, message string) {
	if err := w.Send(ctx, message); err != nil {
		log.Warn().Err(err).Str("message", message).Msg("operator notification not delivered")
	}
}

// Send delivers message and reports the outcome.
func (w *Webhook) Send(ctx context.Context, message string) error {
	if !w.Enabled() {
		log.Info().Str("message", message).Msg("operator notification (webhook not configured)")
		return nil
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification throttled: %w", err)
	}

	req, err := platform.NewJSONRequest(ctx, http.MethodPost, w.url, Payload{Email: w.email, Message: message})
	if err != nil {
		return err
	}
	req.Header.Set("X-API-Key", w.apiKey)

	_, _, err = platform.Do(w.client, "notification", "send", req)
	if err != nil {
		var apiErr *platform.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("notification api returned %d: %s", apiErr.Status, apiErr.Body)
		}
		return err
	}
	return nil
}

// Nop drops every message; used when no notifier is wired.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}
