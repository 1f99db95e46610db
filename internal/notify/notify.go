package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/rowjay/tzwindow/internal/config"
)

// EventWindowChanged is the type of every transition event.
const EventWindowChanged = "window.changed"

// Event announces that a window's state changed.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Window     string         `json:"window"`
	Name       string         `json:"name,omitempty"`
	State      string         `json:"state"`
	Previous   string         `json:"previous"`
	At         time.Time      `json:"at"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// NewEvent stamps a transition event with a fresh id.
func NewEvent(window, name, previous, state string, at time.Time, attrs map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventWindowChanged,
		Window:     window,
		Name:       name,
		State:      state,
		Previous:   previous,
		At:         at.UTC(),
		Attributes: attrs,
	}
}

// Message renders the event for chat targets.
func (e Event) Message() string {
	label := e.Window
	if e.Name != "" {
		label = fmt.Sprintf("%s (%s)", e.Name, e.Window)
	}
	msg := fmt.Sprintf("[%s] %s: %s -> %s at %s", e.State, label, e.Previous, e.State, e.At.Format(time.RFC3339))
	if e.Error != "" {
		msg += ": " + e.Error
	}
	return msg
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type Multi struct {
	Targets []Notifier
}

func (m Multi) Notify(ctx context.Context, event Event) error {
	var err error
	for _, target := range m.Targets {
		if target == nil {
			continue
		}
		if nerr := target.Notify(ctx, event); nerr != nil {
			err = nerr
		}
	}
	return err
}

// Close releases targets that hold connections.
func (m Multi) Close() error {
	var err error
	for _, target := range m.Targets {
		if c, ok := target.(interface{ Close() error }); ok {
			if cerr := c.Close(); cerr != nil {
				err = cerr
			}
		}
	}
	return err
}

type Webhook struct {
	Name    string
	URL     string
	Headers map[string]string
}

func (w Webhook) Notify(ctx context.Context, event Event) error {
	body, _ := json.Marshal(event)
	return post(ctx, "webhook "+w.Name, w.URL, body, w.Headers)
}

type Mattermost struct {
	Name string
	URL  string
}

func (m Mattermost) Notify(ctx context.Context, event Event) error {
	body, err := chatJSON(map[string]string{"text": event.Message()})
	if err != nil {
		return err
	}
	return post(ctx, "mattermost "+m.Name, m.URL, body, nil)
}

type Matrix struct {
	Name        string
	ServerURL   string
	AccessToken string
	RoomID      string
}

func (m Matrix) Notify(ctx context.Context, event Event) error {
	endpoint := fmt.Sprintf("%s/_matrix/client/v3/rooms/%s/send/m.room.message/%s?access_token=%s",
		m.ServerURL, url.PathEscape(m.RoomID), event.ID, url.QueryEscape(m.AccessToken))
	payload := map[string]any{
		"msgtype": "m.text",
		"body":    event.Message(),
	}
	body, err := chatJSON(payload)
	if err != nil {
		return err
	}
	return send(ctx, http.MethodPut, "matrix "+m.Name, endpoint, body, nil)
}

func FromConfig(cfg config.NotificationsConfig) Multi {
	var targets []Notifier
	for _, w := range cfg.Webhooks {
		targets = append(targets, Webhook{Name: w.Name, URL: w.URL, Headers: w.Headers})
	}
	for _, mm := range cfg.Mattermost {
		targets = append(targets, Mattermost{Name: mm.Name, URL: mm.URL})
	}
	for _, mx := range cfg.Matrix {
		targets = append(targets, Matrix{Name: mx.Name, ServerURL: mx.ServerURL, AccessToken: mx.AccessToken, RoomID: mx.RoomID})
	}
	for _, q := range cfg.AMQP {
		targets = append(targets, NewAMQP(q))
	}
	return Multi{Targets: targets}
}

// chatJSON encodes a chat payload leaving "->" and "&" readable.
func chatJSON(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func post(ctx context.Context, target, endpoint string, body []byte, headers map[string]string) error {
	return send(ctx, http.MethodPost, target, endpoint, body, headers)
}

func send(ctx context.Context, method, target, endpoint string, body []byte, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s returned %s", target, resp.Status)
	}
	return nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
