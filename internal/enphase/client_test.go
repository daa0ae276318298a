package enphase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"home_energy/internal/model"
)

func newTestClient(url string, opts ...Option) *Client {
	opts = append([]Option{
		WithLogger(log.New(io.Discard, "", 0)),
		WithRequestDelay(0),
		WithRetries(3, 0),
	}, opts...)
	return New(url, "secret-key", "user-1", opts...)
}

func TestSystems_SendsCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/systems", r.URL.Path)
		assert.Equal(t, "secret-key", r.URL.Query().Get("key"))
		assert.Equal(t, "user-1", r.URL.Query().Get("user_id"))
		fmt.Fprint(w, `{"systems":[{"system_id":67,"system_name":"Home","timezone":"US/Pacific","status":"normal"}]}`)
	}))
	defer srv.Close()

	systems, err := newTestClient(srv.URL).Systems(context.Background())
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, System{SystemID: 67, SystemName: "Home", Timezone: "US/Pacific", Status: "normal"}, systems[0])
}

func TestSystemID_RequiresExactlyOne(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"systems":[{"system_id":1},{"system_id":2}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).SystemID(context.Background())
	assert.EqualError(t, err, "expected exactly one system, but found 2")
}

func TestGet_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"systems":[]}`)
	}))
	defer srv.Close()

	systems, err := newTestClient(srv.URL).Systems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, systems)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_GivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Systems(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")

	var ae *APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, http.StatusBadGateway, ae.StatusCode)
	assert.Equal(t, "boom", ae.Message)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGet_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Systems(context.Background())
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.StatusCode)
	assert.Contains(t, ae.Message, "authentication failed")
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", errors.New("connection reset"), true},
		{"429", &APIError{StatusCode: 429}, true},
		{"500", &APIError{StatusCode: 500}, true},
		{"404", &APIError{StatusCode: 404}, false},
		{"wrapped 503", fmt.Errorf("x: %w", &APIError{StatusCode: 503}), true},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestFetchProduction(t *testing.T) {
	day1 := time.Date(2021, 11, 6, 0, 0, 0, 0, time.UTC)
	var statsCalls []string

	mux := http.NewServeMux()
	mux.HandleFunc("/systems", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"systems":[{"system_id":67}]}`)
	})
	mux.HandleFunc("/systems/67/stats", func(w http.ResponseWriter, r *http.Request) {
		startAt, err := strconv.ParseInt(r.URL.Query().Get("start_at"), 10, 64)
		assert.NoError(t, err)
		endAt, err := strconv.ParseInt(r.URL.Query().Get("end_at"), 10, 64)
		assert.NoError(t, err)
		assert.Equal(t, int64(86400), endAt-startAt)
		statsCalls = append(statsCalls, time.Unix(startAt, 0).UTC().Format("2006-01-02"))

		first := startAt + 17*3600 + 300
		fmt.Fprintf(w, `{"system_id":67,"total_devices":20,"intervals":[
			{"end_at":%d,"devices_reporting":20,"powr":1200,"enwh":100},
			{"end_at":%d,"devices_reporting":20,"powr":1300,"enwh":110}]}`, first, first+300)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	var recs []model.ProductionRecord
	err = newTestClient(srv.URL).FetchProduction(context.Background(),
		day1.Add(5*time.Hour), day1.AddDate(0, 0, 2).Add(time.Hour), la,
		func(r model.ProductionRecord) error {
			recs = append(recs, r)
			return nil
		})
	require.NoError(t, err)

	assert.Equal(t, []string{"2021-11-06", "2021-11-07"}, statsCalls)
	require.Len(t, recs, 4)
	assert.Equal(t, time.Date(2021, 11, 6, 17, 0, 0, 0, time.UTC), recs[0].TimestampUTC)
	assert.Equal(t, 10, recs[0].TimestampLocal.Hour())
	assert.Equal(t, model.WattHours(100), recs[0].Energy)
	assert.Equal(t, time.Date(2021, 11, 6, 17, 5, 0, 0, time.UTC), recs[1].TimestampUTC)
	assert.Equal(t, time.Date(2021, 11, 7, 17, 0, 0, 0, time.UTC), recs[2].TimestampUTC)
	assert.Equal(t, 9, recs[2].TimestampLocal.Hour())
}

func TestFetchProduction_StopsOnCallbackError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/systems", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"systems":[{"system_id":1}]}`)
	})
	mux.HandleFunc("/systems/1/stats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"intervals":[{"end_at":1636218300,"enwh":5}]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	stop := errors.New("disk full")
	start := time.Date(2021, 11, 6, 0, 0, 0, 0, time.UTC)
	err := newTestClient(srv.URL).FetchProduction(context.Background(), start, start.AddDate(0, 0, 3), time.UTC,
		func(model.ProductionRecord) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestFetchProduction_HonorsContextDuringDelay(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/systems", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"systems":[{"system_id":1}]}`)
	})
	mux.HandleFunc("/systems/1/stats", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"intervals":[]}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Date(2021, 11, 6, 0, 0, 0, 0, time.UTC)
	err := newTestClient(srv.URL, WithRequestDelay(time.Hour)).
		FetchProduction(ctx, start, start.AddDate(0, 0, 3), time.UTC, func(model.ProductionRecord) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
