package helpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spooky-finn/marketbus/domain"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte(`{"value":42}`))
		case "/garbage":
			_, _ = w.Write([]byte(`{"value":`))
		default:
			http.Error(w, "nope", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	var out struct {
		Value int `json:"value"`
	}

	require.NoError(t, GetJSON(context.Background(), srv.Client(), srv.URL+"/ok", &out))
	assert.Equal(t, 42, out.Value)

	err := GetJSON(context.Background(), srv.Client(), srv.URL+"/garbage", &out)
	assert.ErrorIs(t, err, domain.ErrParse)

	err = GetJSON(context.Background(), srv.Client(), srv.URL+"/down", &out)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestGetJSON_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	var out map[string]interface{}
	err := GetJSON(context.Background(), http.DefaultClient, url, &out)
	assert.ErrorIs(t, err, domain.ErrNetwork)
}

func TestToJsonString(t *testing.T) {
	assert.Equal(t, `{"pair":"BTCUSD"}`, ToJsonString(map[string]string{"pair": "BTCUSD"}))
	assert.Equal(t, "42", IntToString(42))
}
