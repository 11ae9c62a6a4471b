package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"leadpulse/internal/models"
)

// Dispatcher is the outbound notification sender collaborator. The engine
// never constructs message bodies; it hands the sender the automation kind,
// the lead's contact channels and context data, and the sender renders and
// delivers the message.
type Dispatcher interface {
	Execute(ctx context.Context, kind models.AutomationKind, contact models.ContactInfo, contextData map[string]string) error
}

// HTTPDispatcher delivers automation executions to an external notification
// service over HTTP, paced by a token-bucket limiter so a burst of due jobs
// cannot flood the sender.
type HTTPDispatcher struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHTTPDispatcher creates a dispatcher against the given sender endpoint
func NewHTTPDispatcher(endpoint, apiKey string, perSecond float64, burst int) *HTTPDispatcher {
	return &HTTPDispatcher{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// LogDispatcher records executions to the log instead of delivering them.
// Used in development when no sender endpoint is configured.
type LogDispatcher struct{}

// Execute logs the automation instead of sending it
func (d *LogDispatcher) Execute(ctx context.Context, kind models.AutomationKind, contact models.ContactInfo, contextData map[string]string) error {
	log.Printf("📨 [DISPATCH] (log only) kind=%s email=%q phone=%q context=%v", kind, contact.Email, contact.Phone, contextData)
	return nil
}

type dispatchRequest struct {
	Kind    models.AutomationKind `json:"kind"`
	Contact models.ContactInfo    `json:"contact"`
	Context map[string]string     `json:"context,omitempty"`
}

// Execute sends one automation to the notification service
func (d *HTTPDispatcher) Execute(ctx context.Context, kind models.AutomationKind, contact models.ContactInfo, contextData map[string]string) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: limiter wait: %v", ErrDispatchFailed, err)
	}

	body, err := json.Marshal(dispatchRequest{Kind: kind, Contact: contact, Context: contextData})
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrDispatchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", ErrDispatchFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: sender returned status %d", ErrDispatchFailed, resp.StatusCode)
	}
	return nil
}
