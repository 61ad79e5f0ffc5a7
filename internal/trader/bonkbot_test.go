package trader

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBonkBotClient_Execute(t *testing.T) {
	var gotPath string
	var gotBody tradeRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewBonkBotClient(srv.URL, 2*time.Second)
	err := c.Execute(context.Background(), "token-1", ActionBuy)

	require.NoError(t, err)
	assert.Equal(t, "/trade", gotPath)
	assert.Equal(t, "token-1", gotBody.TokenAddress)
	assert.Equal(t, "buy", gotBody.Action)
	assert.Equal(t, int64(1), c.tradeCount.Load())
	assert.Equal(t, int64(0), c.errorCount.Load())
}

func TestBonkBotClient_RejectedOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "insufficient balance", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	c := NewBonkBotClient(srv.URL, 2*time.Second)
	err := c.Execute(context.Background(), "token-1", ActionSell)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 422")
	assert.Contains(t, err.Error(), "insufficient balance")
	assert.Equal(t, int64(1), c.errorCount.Load())
}

func TestBonkBotClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused

	c := NewBonkBotClient(srv.URL, time.Second)
	err := c.Execute(context.Background(), "token-1", ActionBuy)

	require.Error(t, err)
	assert.Equal(t, int64(1), c.errorCount.Load())
}

func TestTelegramNotifier_Notify(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bot-token", "chat-42")
	n.apiBase = srv.URL

	require.NoError(t, n.Notify(context.Background(), "Buy order executed for token: token-1"))
	assert.Equal(t, "/botbot-token/sendMessage", gotPath)
	assert.Equal(t, "chat-42", gotBody.ChatID)
	assert.Equal(t, "Buy order executed for token: token-1", gotBody.Text)
}

func TestTelegramNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"ok":false}`, http.StatusForbidden)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("bad-token", "chat-42")
	n.apiBase = srv.URL

	err := n.Notify(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}
