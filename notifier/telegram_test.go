package notifier_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vibeguard/sentinel/logging"
	"github.com/vibeguard/sentinel/notifier"
)

type fakeBotAPI struct {
	mu          sync.Mutex
	requests    []map[string]interface{}
	failFirst   int
	rateLimited bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.requests = append(f.requests, body)

	if f.failFirst > 0 {
		f.failFirst--
		if f.rateLimited {
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"ok":          false,
				"description": "Too Many Requests: retry after 1",
				"parameters":  map[string]interface{}{"retry_after": 0},
			})
			return
		}
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true})
}

func (f *fakeBotAPI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func TestTelegramNotify(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tg := notifier.NewTelegramWithBaseURL(logging.New(), "test-token", srv.URL)
	require.NoError(t, tg.Notify(context.Background(), 42, "<b>hello</b>"))

	require.Equal(t, 1, api.requestCount())
	req := api.requests[0]
	require.Equal(t, float64(42), req["chat_id"])
	require.Equal(t, "<b>hello</b>", req["text"])
	require.Equal(t, "HTML", req["parse_mode"])
}

func TestTelegramNotifyRetries(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{failFirst: 2, rateLimited: true}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tg := notifier.NewTelegramWithBaseURL(logging.New(), "test-token", srv.URL)
	require.NoError(t, tg.Notify(context.Background(), 42, "hello"))
	require.Equal(t, 3, api.requestCount())
}

func TestTelegramNotifyGivesUp(t *testing.T) {
	t.Parallel()

	api := &fakeBotAPI{failFirst: 10}
	srv := httptest.NewServer(api)
	defer srv.Close()

	tg := notifier.NewTelegramWithBaseURL(logging.New(), "test-token", srv.URL)
	err := tg.Notify(context.Background(), 42, "hello")
	require.Error(t, err)
	require.Equal(t, 3, api.requestCount())
}
