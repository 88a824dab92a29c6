package npd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestSubmitIncomeReturnsNon2xxAsResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/income", r.URL.Path)
		require.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		require.Equal(t, "https://lknpd.nalog.ru", r.Header.Get("Origin"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var p Payload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		require.Equal(t, "500", p.TotalAmount)

		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"VALIDATION_ERROR"}`))
	}))
	defer srv.Close()

	c := NewClientWithBase("abc", srv.URL)
	payload := BuildPayload("2024-01-05T13:00:00+03:00", "x", decimal.RequireFromString("500"), PaymentTypeCash, time.Now())

	resp, err := c.SubmitIncome(context.Background(), payload)
	require.NoError(t, err, "non-2xx must not be an error")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, `{"code":"VALIDATION_ERROR"}`, resp.Body)
}

func TestSubmitIncomeTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClientWithBase("abc", srv.URL)
	_, err := c.SubmitIncome(context.Background(), Payload{})
	require.Error(t, err)
	require.True(t, IsTransport(err))
}

func TestBearerNormalization(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Bearer abc", NewClient(" abc ").token)
	require.Equal(t, "Bearer abc", NewClient("Bearer abc").token)
}

func TestCheckToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/taxpayer", r.URL.Path)
		_, _ = w.Write([]byte(`{"displayName":"Иванов Иван","inn":"123456789012"}`))
	}))
	defer srv.Close()

	c := NewClientWithBase("abc", srv.URL)
	tp, err := c.CheckToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Иванов Иван", tp.DisplayName)
	require.Equal(t, "123456789012", tp.INN)
}

func TestCheckTokenRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"TOKEN_EXPIRED"}`))
	}))
	defer srv.Close()

	c := NewClientWithBase("abc", srv.URL)
	_, err := c.CheckToken(context.Background())
	require.Error(t, err)
	require.False(t, IsTransport(err))
	require.Contains(t, err.Error(), "401")
}
