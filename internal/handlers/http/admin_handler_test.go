package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"chatwarden/internal/core/domain"
	"chatwarden/internal/core/services"
	"chatwarden/internal/infrastructure/middleware"
	memoryrepo "chatwarden/internal/infrastructure/repositories/memory"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"
)

type stubChat struct {
	mu        sync.Mutex
	moderated map[domain.Channel]bool
}

func (f *stubChat) Say(ctx context.Context, channel domain.Channel, text string) error { return nil }

func (f *stubChat) Timeout(ctx context.Context, channel domain.Channel, user string, duration time.Duration, reason string) error {
	return nil
}

func (f *stubChat) Ban(ctx context.Context, channel domain.Channel, user string, reason string) error {
	return nil
}

func (f *stubChat) IsModerator(channel domain.Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moderated[channel]
}

func (f *stubChat) Channels() []domain.Channel { return nil }

type adminAPI struct {
	router   *gin.Engine
	chat     *stubChat
	policies *services.PolicyService
	pyramids *services.PyramidService
}

func newAdminAPI(t *testing.T) *adminAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t).Sugar()
	store := memoryrepo.NewStore()
	chat := &stubChat{moderated: make(map[domain.Channel]bool)}

	policies := services.NewPolicyService(store, log)
	defaults := map[domain.CommandID][]domain.Role{
		"setroles": {domain.RoleBroadcaster, domain.RoleModerator},
		"ping":     nil,
	}
	if err := policies.Load(context.Background(), defaults); err != nil {
		t.Fatalf("load policies: %v", err)
	}
	cooldowns := services.NewCooldownService(store, log)
	pyramids := services.NewPyramidService(nil, chat, store, log)
	pyramids.ChannelInit("somechannel")
	accountAge := services.NewAccountAgeService(store, chat, log)

	router := gin.New()
	router.Use(middleware.ErrorHandlerMiddleware(log))
	handler := NewAdminHandler(policies, cooldowns, pyramids, accountAge)
	handler.SetupRoutes(router.Group("/api/v1"))

	return &adminAPI{router: router, chat: chat, policies: policies, pyramids: pyramids}
}

func (a *adminAPI) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func TestAdmin_GetCommandPolicy(t *testing.T) {
	api := newAdminAPI(t)

	w := api.request(t, http.MethodGet, "/api/v1/commands/setroles/policy", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["command"] != "setroles" {
		t.Fatalf("unexpected body %v", body)
	}

	w = api.request(t, http.MethodGet, "/api/v1/commands/nosuch/policy", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("got status %d, want 404", w.Code)
	}
}

func TestAdmin_SetChannelRoles(t *testing.T) {
	api := newAdminAPI(t)

	w := api.request(t, http.MethodPut, "/api/v1/channels/somechannel/commands/setroles/roles",
		map[string]interface{}{"levels": []string{"vip"}})
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	if body["kind"] != "custom" {
		t.Fatalf("unexpected body %v", body)
	}

	w = api.request(t, http.MethodGet, "/api/v1/channels/somechannel/commands/setroles/roles", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d", w.Code)
	}
	body = decodeBody(t, w)
	roles, ok := body["roles"].([]interface{})
	if !ok || len(roles) != 1 || roles[0] != "vip" {
		t.Fatalf("unexpected roles %v", body["roles"])
	}
}

func TestAdmin_SetChannelRoles_Errors(t *testing.T) {
	api := newAdminAPI(t)

	tests := []struct {
		name   string
		path   string
		levels []string
		want   int
	}{
		{"unknown command", "/api/v1/channels/somechannel/commands/nosuch/roles", []string{"vip"}, http.StatusNotFound},
		{"bad role", "/api/v1/channels/somechannel/commands/setroles/roles", []string{"wizard"}, http.StatusBadRequest},
		{"conflicting levels", "/api/v1/channels/somechannel/commands/setroles/roles", []string{"all", "vip"}, http.StatusConflict},
		{"empty levels", "/api/v1/channels/somechannel/commands/setroles/roles", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.request(t, http.MethodPut, tt.path, map[string]interface{}{"levels": tt.levels})
			if w.Code != tt.want {
				t.Fatalf("got status %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestAdmin_CooldownRoundTrip(t *testing.T) {
	api := newAdminAPI(t)

	w := api.request(t, http.MethodPut, "/api/v1/channels/somechannel/commands/ping/cooldown",
		map[string]interface{}{"seconds": 30})
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}

	w = api.request(t, http.MethodGet, "/api/v1/channels/somechannel/commands/ping/cooldown", nil)
	body := decodeBody(t, w)
	if body["seconds"] != float64(30) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestAdmin_SetCooldown_RejectsHugeValues(t *testing.T) {
	api := newAdminAPI(t)

	w := api.request(t, http.MethodPut, "/api/v1/channels/somechannel/commands/ping/cooldown",
		map[string]interface{}{"seconds": 1000000})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestAdmin_ModerationMode(t *testing.T) {
	api := newAdminAPI(t)

	w := api.request(t, http.MethodGet, "/api/v1/channels/somechannel/moderation", nil)
	body := decodeBody(t, w)
	if body["mode"] != "normal" {
		t.Fatalf("unexpected body %v", body)
	}

	// Max mode without moderator capability is refused.
	w = api.request(t, http.MethodPut, "/api/v1/channels/somechannel/moderation",
		map[string]string{"mode": "max"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("got status %d, want 403: %s", w.Code, w.Body.String())
	}

	api.chat.moderated["somechannel"] = true
	w = api.request(t, http.MethodPut, "/api/v1/channels/somechannel/moderation",
		map[string]string{"mode": "max"})
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	if got := api.pyramids.Mode("somechannel"); got != domain.ModeMax {
		t.Fatalf("mode is %s, want max", got)
	}

	w = api.request(t, http.MethodPut, "/api/v1/channels/somechannel/moderation",
		map[string]string{"mode": "aggressive"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestAdmin_AgeGate(t *testing.T) {
	api := newAdminAPI(t)

	w := api.request(t, http.MethodPut, "/api/v1/channels/somechannel/agegate",
		map[string]interface{}{"hours": 48, "action": "ban"})
	if w.Code != http.StatusOK {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}

	w = api.request(t, http.MethodPut, "/api/v1/channels/somechannel/agegate",
		map[string]interface{}{"hours": 48, "action": "obliterate"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}

func TestAdmin_BanLifecycle(t *testing.T) {
	api := newAdminAPI(t)

	w := api.request(t, http.MethodPost, "/api/v1/bans", map[string]string{"username": " Troll "})
	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d: %s", w.Code, w.Body.String())
	}
	if !api.policies.IsBanned("troll") {
		t.Fatal("expected troll to be banned")
	}

	w = api.request(t, http.MethodGet, "/api/v1/bans", nil)
	body := decodeBody(t, w)
	banned, ok := body["banned"].([]interface{})
	if !ok || len(banned) != 1 {
		t.Fatalf("unexpected body %v", body)
	}

	w = api.request(t, http.MethodDelete, "/api/v1/bans/troll", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, want 204", w.Code)
	}
	if api.policies.IsBanned("troll") {
		t.Fatal("expected troll to be unbanned")
	}
}

func TestAdmin_RejectsInvalidChannelName(t *testing.T) {
	api := newAdminAPI(t)

	w := api.request(t, http.MethodGet, "/api/v1/channels/bad!name/moderation", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}
}
