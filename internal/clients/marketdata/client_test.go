package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/paperdesk/internal/domain"
)

func testLog() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func TestQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/quote", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("ticker"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ticker":"AAPL","price":"150.25"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", testLog())
	price, err := client.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "150.25", price.String())
}

func TestQuote_UnknownTicker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLog())
	_, err := client.Quote(context.Background(), "NOPE")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestQuote_ZeroPriceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticker":"HALT","price":"0.00"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLog())
	_, err := client.Quote(context.Background(), "HALT")
	assert.ErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestQuote_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLog())
	_, err := client.Quote(context.Background(), "AAPL")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPriceUnavailable)
}

func TestHistory_SortsAscending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/history", r.URL.Path)
		assert.Equal(t, "1mo", r.URL.Query().Get("period"))
		w.Write([]byte(`{"ticker":"AAPL","period":"1mo","candles":[
			{"time":1700086400,"open":101,"high":102,"low":100,"close":101.5,"volume":900},
			{"time":1700000000,"open":100,"high":101,"low":99,"close":100.5,"volume":1000}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "", testLog())
	candles, err := client.History(context.Background(), "AAPL", "1mo")
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.True(t, candles[0].Time.Before(candles[1].Time))
	assert.InDelta(t, 100.5, candles[0].Close, 1e-9)
}

func TestCachedOracle_FallsBackToHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticker":"AAPL","price":"150.00"}`))
	}))
	defer server.Close()

	oracle := NewCachedOracle(nil, NewClient(server.URL, "", testLog()))
	price, err := oracle.Quote(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "150.00", price.String())
}
