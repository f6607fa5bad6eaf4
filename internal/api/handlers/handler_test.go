package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/tesdash/internal/auth"
	"github.com/langchou/tesdash/internal/backend"
	"github.com/langchou/tesdash/internal/credentials"
	"github.com/langchou/tesdash/internal/pkce"
	"github.com/langchou/tesdash/internal/service"
	"github.com/langchou/tesdash/internal/state"
	"github.com/langchou/tesdash/internal/store"
	"github.com/langchou/tesdash/pkg/ws"
)

// fakeProxy 模拟凭据代理
type fakeProxy struct {
	configStatus int
	exchanges    atomic.Int32
	commands     atomic.Int32
}

func (p *fakeProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/api/config":
		if p.configStatus != 0 {
			w.WriteHeader(p.configStatus)
			w.Write([]byte(`{"error":"missing client id"}`))
			return
		}
		w.Write([]byte(`{"clientId":"public-id"}`))
	case "/api/auth/token":
		p.exchanges.Add(1)
		w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","expires_in":28800}`))
	case "/api/vehicles":
		w.Write([]byte(`{"response":[{"id":1,"id_s":"1492931337","display_name":"Blue"}]}`))
	default:
		if strings.HasSuffix(r.URL.Path, "/command") {
			p.commands.Add(1)
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}
}

type testEnv struct {
	router     *gin.Engine
	manager    *auth.Manager
	proxy      *fakeProxy
	mem        *store.MemoryStore
	completion *auth.ChannelCompletion
}

func newTestEnv(t *testing.T, withCompletion bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	proxy := &fakeProxy{}
	srv := httptest.NewServer(proxy)
	t.Cleanup(srv.Close)

	mem := store.NewMemoryStore()
	vault := credentials.NewVault(mem)
	prefs := credentials.NewPreferenceStore(mem)
	pending := store.NewTransient[*pkce.Session](time.Minute)
	t.Cleanup(pending.Close)

	client := backend.NewClient(srv.URL, 2*time.Second, 2*time.Second)

	var completion *auth.ChannelCompletion
	var comp auth.Completion
	if withCompletion {
		completion = auth.NewChannelCompletion()
		comp = completion
	}

	manager := auth.NewManager(zap.NewNop(), client, vault, pending, comp, auth.Options{
		AuthorizeURL: "https://auth.example.com/oauth2/v3/authorize",
		Audience:     "https://fleet.example.com",
		Scopes:       "openid offline_access",
		RedirectURI:  "http://localhost:5500/callback",
		LoginTimeout: 5 * time.Second,
	})

	hub := ws.NewHub(zap.NewNop())
	go hub.Run()
	t.Cleanup(hub.Close)

	syncService := service.NewSyncService(zap.NewNop(), manager, client, time.Hour)
	commandService := service.NewCommandService(zap.NewNop(), manager, client, syncService)

	h := NewHandler(zap.NewNop(), manager, completion, syncService, commandService, prefs, hub, credentials.Miles)
	syncService.SetBroadcaster(h)

	r := gin.New()
	h.RegisterRoutes(r)

	return &testEnv{router: r, manager: manager, proxy: proxy, mem: mem, completion: completion}
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// beginLogin 发起登录并返回授权地址中的 state
func beginLogin(t *testing.T, env *testEnv) string {
	t.Helper()
	w := do(env.router, http.MethodPost, "/api/login", "")
	require.Equal(t, http.StatusOK, w.Code)

	u, err := url.Parse(decode(t, w)["authorize_url"].(string))
	require.NoError(t, err)
	assert.Equal(t, "public-id", u.Query().Get("client_id"))
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	return u.Query().Get("state")
}

func TestStatusLoggedOut(t *testing.T) {
	env := newTestEnv(t, false)

	w := do(env.router, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["demo"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, state.StateLoggedOut, data["state"])
	assert.Equal(t, false, data["logged_in"])
	assert.Equal(t, credentials.DefaultVehicleName, data["vehicle_name"])
}

func TestLoginConfigUnavailable(t *testing.T) {
	env := newTestEnv(t, false)
	env.proxy.configStatus = http.StatusInternalServerError

	w := do(env.router, http.MethodPost, "/api/login", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, state.StateLoggedOut, env.manager.State())
}

func TestCallbackCompletesLogin(t *testing.T) {
	env := newTestEnv(t, false)
	st := beginLogin(t, env)
	assert.Equal(t, state.StateConnecting, env.manager.State())

	w := do(env.router, http.MethodGet, "/callback?code=c0de&state="+url.QueryEscape(st), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Connected")

	assert.Equal(t, state.StateLoggedIn, env.manager.State())
	assert.EqualValues(t, 1, env.proxy.exchanges.Load())

	w = do(env.router, http.MethodGet, "/api/status", "")
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, true, data["logged_in"])
	assert.Equal(t, "1492931337", data["vehicle_id"])
	assert.Equal(t, "Blue", data["vehicle_name"])
}

func TestCallbackStateMismatch(t *testing.T) {
	env := newTestEnv(t, false)
	beginLogin(t, env)

	w := do(env.router, http.MethodGet, "/callback?code=c0de&state=forged", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.EqualValues(t, 0, env.proxy.exchanges.Load())
	assert.Equal(t, state.StateLoggedOut, env.manager.State())
	assert.False(t, env.manager.IsLoggedIn(context.Background()))
}

func TestCallbackDeliveredToWaiter(t *testing.T) {
	env := newTestEnv(t, true)
	st := beginLogin(t, env)

	w := do(env.router, http.MethodGet, "/callback?code=c0de&state="+url.QueryEscape(st), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Login received")

	require.Eventually(t, func() bool {
		return env.manager.State() == state.StateLoggedIn
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, env.proxy.exchanges.Load())
}

func TestLogoutClearsSession(t *testing.T) {
	env := newTestEnv(t, false)
	st := beginLogin(t, env)
	do(env.router, http.MethodGet, "/callback?code=c0de&state="+url.QueryEscape(st), "")

	w := do(env.router, http.MethodPost, "/api/logout", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"state":"logged_out"}`, w.Body.String())

	_, ok, err := env.mem.Get(context.Background(), credentials.KeyAccessToken)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSnapshotDemoDisplay(t *testing.T) {
	env := newTestEnv(t, false)

	w := do(env.router, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	assert.Equal(t, true, body["demo"])
	display := body["display"].(map[string]interface{})
	assert.Equal(t, "78%", display["battery"])
}

func TestCommandWhenNotConnected(t *testing.T) {
	env := newTestEnv(t, false)

	w := do(env.router, http.MethodPost, "/api/commands/door_lock", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"ok":false,"reason":"not connected"}`, w.Body.String())
	assert.EqualValues(t, 0, env.proxy.commands.Load())
}

func TestCommandRejectsInvalidParams(t *testing.T) {
	env := newTestEnv(t, false)

	w := do(env.router, http.MethodPost, "/api/commands/set_temps", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshWhenNotConnected(t *testing.T) {
	env := newTestEnv(t, false)

	w := do(env.router, http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPreferencesRoundTrip(t *testing.T) {
	env := newTestEnv(t, false)

	w := do(env.router, http.MethodPut, "/api/preferences",
		`{"temperature_unit":"fahrenheit","location":{"latitude":52.37,"longitude":4.89}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(env.router, http.MethodGet, "/api/preferences", "")
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, credentials.Fahrenheit, data["temperature_unit"])
	assert.Equal(t, credentials.Km, data["distance_unit"])
	assert.NotNil(t, data["location"])

	w = do(env.router, http.MethodPut, "/api/preferences", `{"clear_location":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	data = decode(t, w)["data"].(map[string]interface{})
	assert.Nil(t, data["location"])
}

func TestPreferencesRejectsInvalidUnit(t *testing.T) {
	env := newTestEnv(t, false)

	w := do(env.router, http.MethodPut, "/api/preferences", `{"distance_unit":"furlongs"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(env.router, http.MethodGet, "/api/preferences", "")
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, credentials.Km, data["distance_unit"])
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t, false)

	w := do(env.router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","ws_clients":0}`, w.Body.String())
}

func TestCallbackWithoutLoginInProgress(t *testing.T) {
	env := newTestEnv(t, true)

	w := do(env.router, http.MethodGet, "/callback?code=old&state=stale", "")
	assert.Equal(t, http.StatusConflict, w.Code)

	st := beginLogin(t, env)
	w = do(env.router, http.MethodGet, "/callback?code=c0de&state="+url.QueryEscape(st), "")
	assert.Equal(t, http.StatusOK, w.Code)

	require.Eventually(t, func() bool {
		return env.manager.State() == state.StateLoggedIn
	}, 2*time.Second, 10*time.Millisecond)
	assert.EqualValues(t, 1, env.proxy.exchanges.Load())
}
