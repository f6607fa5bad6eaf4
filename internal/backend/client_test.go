package backend

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

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 2*time.Second, 2*time.Second)
}

func TestConfig(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/config", r.URL.Path)
		w.Write([]byte(`{"clientId":"abc"}`))
	})

	id, err := c.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestRefreshStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rt", body["refresh_token"])
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"refresh token revoked"}`))
	})

	_, err := c.Refresh(context.Background(), "rt")
	require.Error(t, err)
	assert.True(t, HasStatus(err, http.StatusUnauthorized))
	assert.True(t, IsClientError(err))
	assert.Contains(t, err.Error(), "refresh token revoked")
}

func TestListVehiclesSendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at", r.Header.Get("Authorization"))
		w.Write([]byte(`{"response":[{"id":1,"id_s":"1001","display_name":"Car"}],"count":1}`))
	})

	vehicles, err := c.ListVehicles(context.Background(), "at")
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "1001", vehicles[0].Identifier())
}

func TestWakeUpTimedOut(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/vehicles/1001/wake_up", r.URL.Path)
		w.Write([]byte(`{"online":false,"state":"asleep","attempts":12}`))
	})

	res, err := c.WakeUp(context.Background(), "at", "1001")
	require.NoError(t, err)
	assert.False(t, res.Online)
	assert.Equal(t, 12, res.Attempts)
}

func TestCommandReturnsRawResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "set_charge_limit", body["command"])
		assert.Equal(t, float64(80), body["percent"])
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"bad"}`))
	})

	resp, err := c.Command(context.Background(), "at", "1001", "set_charge_limit", map[string]interface{}{"percent": 80})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"bad"}`, string(resp.Body))
}

func TestTransportError(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second, time.Second)
	_, err := c.ListVehicles(context.Background(), "at")
	require.Error(t, err)
	assert.False(t, IsClientError(err))
}
