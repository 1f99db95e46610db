package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rowjay/tzwindow/internal/config"
)

func sampleEvent() Event {
	at := time.Date(2024, 1, 10, 22, 0, 0, 0, time.UTC)
	return NewEvent("night", "Night", "off", "on", at, map[string]any{"timezone": "Europe/Berlin"})
}

func TestNewEvent(t *testing.T) {
	e := sampleEvent()
	assert.Len(t, e.ID, 36)
	assert.Equal(t, EventWindowChanged, e.Type)
	assert.Equal(t, "[on] Night (night): off -> on at 2024-01-10T22:00:00Z", e.Message())
	assert.NotEqual(t, e.ID, sampleEvent().ID)
}

func TestWebhookAndChatTargets(t *testing.T) {
	type hit struct {
		method, path, auth string
		body               []byte
	}
	hits := make(chan hit, 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		hits <- hit{r.Method, r.URL.Path, r.Header.Get("Authorization"), body}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	multi := FromConfig(config.NotificationsConfig{
		Webhooks:   []config.WebhookConfig{{Name: "hook", URL: srv.URL + "/hook", Headers: map[string]string{"Authorization": "Bearer x"}}},
		Mattermost: []config.MattermostHook{{Name: "mm", URL: srv.URL + "/mm"}},
		Matrix:     []config.MatrixConfig{{Name: "mx", ServerURL: srv.URL, AccessToken: "tok", RoomID: "!room:example.org"}},
	})
	event := sampleEvent()
	require.NoError(t, multi.Notify(context.Background(), event))
	close(hits)

	got := map[string]hit{}
	for h := range hits {
		got[h.method+" "+strings.SplitN(h.path, "/", 3)[1]] = h
	}
	require.Len(t, got, 3)

	var decoded Event
	require.NoError(t, json.Unmarshal(got["POST hook"].body, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, "on", decoded.State)
	assert.Equal(t, "Bearer x", got["POST hook"].auth)

	var chat map[string]string
	require.NoError(t, json.Unmarshal(got["POST mm"].body, &chat))
	assert.Equal(t, event.Message(), chat["text"])
	assert.Contains(t, string(got["POST mm"].body), "off -> on")

	var room map[string]string
	require.NoError(t, json.Unmarshal(got["PUT _matrix"].body, &room))
	assert.Equal(t, "m.text", room["msgtype"])
	assert.Equal(t, event.Message(), room["body"])
	assert.Contains(t, got["PUT _matrix"].path, event.ID)
}

func TestWebhookFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	err := Webhook{Name: "hook", URL: srv.URL}.Notify(context.Background(), sampleEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type fakeChannel struct {
	exchange, key string
	msg           amqp091.Publishing
	fail          bool
	closed        bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if f.fail {
		return errors.New("channel closed")
	}
	f.exchange, f.key, f.msg = exchange, key, msg
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublish(t *testing.T) {
	ch := &fakeChannel{}
	target := NewAMQP(config.AMQPConfig{Name: "bus", Exchange: "tzw", RoutingKey: "window.changed"})
	target.channel = ch

	event := sampleEvent()
	require.NoError(t, target.Notify(context.Background(), event))
	assert.Equal(t, "tzw", ch.exchange)
	assert.Equal(t, "window.changed", ch.key)
	assert.Equal(t, event.ID, ch.msg.MessageId)
	assert.Equal(t, amqp091.Persistent, ch.msg.DeliveryMode)
	assert.Equal(t, "night", ch.msg.Headers["window"])

	ch.fail = true
	require.Error(t, target.Notify(context.Background(), event))
	assert.True(t, ch.closed)
	assert.Nil(t, target.channel)
}
