package hospital

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hcc-mvi-risk-server/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger, _ := test.NewNullLogger()
	client, err := NewClient(domain.HospitalConfig{
		BaseURL:    server.URL + "/",
		APIKey:     "secret-key",
		HospitalID: "HOSP-7",
		Timeout:    2 * time.Second,
		RateLimit:  100,
		RetryCount: retries,
	}, logger)
	require.NoError(t, err)
	return client
}

func TestNewClient_NotConfigured(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewClient(domain.HospitalConfig{}, logger)
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewClient(domain.HospitalConfig{BaseURL: "not a url"}, logger)
	assert.Error(t, err)
}

func TestClient_TestConnection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		assert.Equal(t, "Bearer secret-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"status":"ok"}`))
	}, 0)

	assert.NoError(t, client.TestConnection(context.Background()))
}

func TestClient_FetchPatients(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/patients", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "HOSP-7", r.URL.Query().Get("hospital_id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"patient_id":"P1","afp":12.5,"pivka_ii":40,"tumor_burden":7.2,"mvi":"yes"}]`))
	}, 0)

	patients, err := client.FetchPatients(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, patients, 1)
	assert.Equal(t, "P1", patients[0]["patient_id"])

	rec, err := MapRecord(patients[0], fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 12.5, rec.Observation.AFP)
	require.NotNil(t, rec.ActualMVI)
	assert.True(t, *rec.ActualMVI)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}, 2)

	patients, err := client.FetchPatients(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, patients)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}, 3)

	_, err := client.FetchPatients(context.Background(), 10)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "bad token")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_MalformedBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}, 0)

	_, err := client.FetchPatients(context.Background(), 10)
	assert.Error(t, err)
}
