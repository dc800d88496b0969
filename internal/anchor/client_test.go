package anchor

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tradeproof/internal/hashing"
	"tradeproof/pkg/types"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalendarClientSubmitsRawDigest(t *testing.T) {
	digest := hashing.Sum([]byte("kitchen before photo"))
	want, _ := hashing.Decode(digest)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/digest", r.URL.Path)
		assert.Equal(t, "application/vnd.opentimestamps.v1", r.Header.Get("Accept"))

		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, want, body)

		_, _ = w.Write([]byte{0xf0, 0x10, 0x01})
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	client := NewCalendarClient([]string{srv.URL + "/"}, time.Second, logger)

	token, err := client.Submit(context.Background(), digest)
	require.NoError(t, err)
	assert.Equal(t, "ots:8BAB", token)

	proof, err := DecodeToken(token)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xf0, 0x10, 0x01}, proof)
}

func TestCalendarClientFallsBackToNextCalendar(t *testing.T) {
	var calls atomic.Int32
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("proof"))
	}))
	defer up.Close()

	logger, hook := test.NewNullLogger()
	client := NewCalendarClient([]string{down.URL, up.URL}, time.Second, logger)

	token, err := client.Submit(context.Background(), hashing.Sum([]byte("x")))
	require.NoError(t, err)
	assert.Equal(t, EncodeToken([]byte("proof")), token)
	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, hook.AllEntries(), 1)
}

func TestCalendarClientAllDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	logger, _ := test.NewNullLogger()
	client := NewCalendarClient([]string{srv.URL}, time.Second, logger)

	_, err := client.Submit(context.Background(), hashing.Sum([]byte("x")))
	require.Error(t, err)
	assert.Equal(t, types.KindUnavailable, types.KindOf(err))
}

func TestCalendarClientRejectsBadDigest(t *testing.T) {
	logger, _ := test.NewNullLogger()
	client := NewCalendarClient([]string{"http://127.0.0.1:1"}, time.Second, logger)

	_, err := client.Submit(context.Background(), "not-a-digest")
	assert.Equal(t, types.KindValidation, types.KindOf(err))
}
