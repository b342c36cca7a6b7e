package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ladlehq/ladle/config"
	"github.com/ladlehq/ladle/internal/domain/model"
)

func TestSMSSend(t *testing.T) {
	ctx := context.Background()

	newSender := func(t *testing.T, endpoint string) *SMSSender {
		t.Helper()
		sender, err := NewSMSSender(SMSSenderConfig{
			Provider: config.SMSProviderConfig{
				EndpointURL: endpoint,
				From:        "LADLE",
			},
		})
		require.NoError(t, err)
		return sender
	}

	t.Run("posts the message", func(t *testing.T) {
		var got map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		err := newSender(t, srv.URL).Send(ctx, Message{To: "+15550100100", Body: "Table ready"})
		require.NoError(t, err)
		assert.Equal(t, "LADLE", got["from"])
		assert.Equal(t, "+15550100100", got["to"])
		assert.Equal(t, "Table ready", got["body"])
	})

	t.Run("invalid number fails permanently before any request", func(t *testing.T) {
		contacted := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			contacted = true
		}))
		defer srv.Close()

		err := newSender(t, srv.URL).Send(ctx, Message{To: "555-0100", Body: "b"})
		require.Error(t, err)
		assert.True(t, model.IsPermanent(err))
		assert.False(t, contacted)
	})

	t.Run("gateway rejection is permanent", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "number opted out", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		err := newSender(t, srv.URL).Send(ctx, Message{To: "+15550100100", Body: "b"})
		require.Error(t, err)
		assert.True(t, model.IsPermanent(err))
	})

	t.Run("gateway outage is transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		err := newSender(t, srv.URL).Send(ctx, Message{To: "+15550100100", Body: "b"})
		require.Error(t, err)
		assert.False(t, model.IsPermanent(err))
	})
}

func TestWhatsAppSend(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the gateway message shape", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		sender, err := NewWhatsAppSender(WhatsAppSenderConfig{
			Provider: config.WhatsAppProviderConfig{
				EndpointURL: srv.URL,
				SenderID:    "ladle-main",
			},
		})
		require.NoError(t, err)

		err = sender.Send(ctx, Message{To: "+15550100100", Body: "Your order is ready"})
		require.NoError(t, err)
		assert.Equal(t, "ladle-main", got["sender_id"])
		assert.Equal(t, "text", got["type"])
		text, ok := got["text"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "Your order is ready", text["body"])
	})

	t.Run("requires an endpoint", func(t *testing.T) {
		_, err := NewWhatsAppSender(WhatsAppSenderConfig{})
		require.Error(t, err)
	})
}
