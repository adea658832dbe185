package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maksimkurb/pbrsync/src/internal/config"
	"github.com/maksimkurb/pbrsync/src/internal/metrics"
	"github.com/maksimkurb/pbrsync/src/internal/pbrmap"
)

type fakeRules struct {
	rules []pbrmap.RuleView
}

func (f *fakeRules) Rules() []pbrmap.RuleView { return f.rules }

func (f *fakeRules) Maps() []pbrmap.MapView {
	var out []pbrmap.MapView
	index := map[string]int{}
	for _, r := range f.rules {
		i, ok := index[r.Map]
		if !ok {
			i = len(out)
			index[r.Map] = i
			out = append(out, pbrmap.MapView{Name: r.Map})
		}
		out[i].Rules = append(out[i].Rules, r)
	}
	return out
}

func (f *fakeRules) Map(name string) (pbrmap.MapView, bool) {
	for _, m := range f.Maps() {
		if m.Name == name {
			return m, true
		}
	}
	return pbrmap.MapView{}, false
}

func (f *fakeRules) Interfaces() []pbrmap.InterfaceView {
	var out []pbrmap.InterfaceView
	for _, r := range f.rules {
		out = append(out, pbrmap.InterfaceView{Namespace: r.Namespace, Interface: r.Interface, Map: r.Map, Rules: []pbrmap.RuleView{r}})
	}
	return out
}

func (f *fakeRules) Interface(name string) []pbrmap.InterfaceView {
	var out []pbrmap.InterfaceView
	for _, v := range f.Interfaces() {
		if v.Interface == name {
			out = append(out, v)
		}
	}
	return out
}

func sampleRules() *fakeRules {
	return &fakeRules{rules: []pbrmap.RuleView{
		{Interface: "br0", Map: "office", Seq: 10, Priority: 310, SrcIP: "10.0.0.0/24", Table: 1000, Desired: true, Installed: true, Status: "install_success"},
		{Interface: "br0", Map: "office", Seq: 20, Priority: 320, SrcIP: "10.0.1.0/24", Table: 100, Desired: true, Installed: false, Status: "install_failure"},
		{Namespace: "vpn", Interface: "wg0", Map: "v6", Seq: 5, Priority: 305, DstIP: "2001:db8::/32", Table: 51820, Desired: true, Installed: true},
	}}
}

func get(t *testing.T, h http.Handler, path, remote string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := struct {
		Data json.RawMessage `json:"data"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NoError(t, json.Unmarshal(body.Data, v))
}

func TestGetPBR(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	rec := get(t, h, "/api/v1/pbr", "127.0.0.1:4000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp PBRResponse
	decodeData(t, rec, &resp)
	assert.Equal(t, PBRSummary{Total: 3, Installed: 2, Failed: 1}, resp.Summary)
	require.Len(t, resp.Rules, 3)
	assert.Equal(t, uint32(310), resp.Rules[0].Priority)
}

func TestGetPBREmpty(t *testing.T) {
	h := NewRouter(&fakeRules{}, nil, nil)

	rec := get(t, h, "/api/v1/pbr", "127.0.0.1:4000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rules":[]`)
}

func TestGetMap(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	rec := get(t, h, "/api/v1/pbr/maps/office", "10.1.2.3:4000")
	require.Equal(t, http.StatusOK, rec.Code)

	var m pbrmap.MapView
	decodeData(t, rec, &m)
	assert.Equal(t, "office", m.Name)
	assert.Len(t, m.Rules, 2)
}

func TestGetMapNotFound(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	rec := get(t, h, "/api/v1/pbr/maps/missing", "127.0.0.1:4000")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.ElementsMatch(t, []interface{}{"office", "v6"}, resp.Error.Details["available"])
}

func TestGetMaps(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	rec := get(t, h, "/api/v1/pbr/maps", "127.0.0.1:4000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MapsResponse
	decodeData(t, rec, &resp)
	assert.Len(t, resp.Maps, 2)
}

func TestGetInterface(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	rec := get(t, h, "/api/v1/pbr/interfaces/wg0", "127.0.0.1:4000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InterfacesResponse
	decodeData(t, rec, &resp)
	require.Len(t, resp.Interfaces, 1)
	assert.Equal(t, "vpn", resp.Interfaces[0].Namespace)

	rec = get(t, h, "/api/v1/pbr/interfaces/eth9", "127.0.0.1:4000")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, h, "/api/v1/pbr/interfaces/averyveryverylongname", "127.0.0.1:4000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetInterfaces(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	rec := get(t, h, "/api/v1/pbr/interfaces", "127.0.0.1:4000")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InterfacesResponse
	decodeData(t, rec, &resp)
	assert.Len(t, resp.Interfaces, 3)
}

func TestPrivateSubnetOnly(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	tests := []struct {
		remote string
		want   int
	}{
		{"127.0.0.1:1", http.StatusOK},
		{"192.168.1.10:1", http.StatusOK},
		{"172.20.0.1:1", http.StatusOK},
		{"[::1]:1", http.StatusOK},
		{"[fd00::1]:1", http.StatusOK},
		{"[::ffff:10.0.0.5]:1", http.StatusOK},
		{"[fe80::1%eth0]:1", http.StatusOK},
		{"8.8.8.8:1", http.StatusForbidden},
		{"[2001:db8::1]:1", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			rec := get(t, h, "/api/v1/pbr", tt.remote)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPrivateSubnetOnlyIgnoresForwardedFor(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/pbr", nil)
	req.RemoteAddr = "8.8.8.8:1"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("X-Real-IP", "10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := NewRouter(sampleRules(), nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/pbr", nil)
	req.RemoteAddr = "127.0.0.1:1"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.NewRegistry()
	h := NewRouter(sampleRules(), nil, m)

	get(t, h, "/api/v1/pbr/maps/office", "127.0.0.1:1")
	get(t, h, "/api/v1/pbr/maps/missing", "127.0.0.1:1")

	rec := get(t, h, "/metrics", "127.0.0.1:1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `pbrsync_api_requests_total{code="200",route="/api/v1/pbr/maps/{name}"} 1`)
	assert.Contains(t, rec.Body.String(), `pbrsync_api_requests_total{code="404",route="/api/v1/pbr/maps/{name}"} 1`)

	rec = get(t, NewRouter(sampleRules(), nil, nil), "/metrics", "127.0.0.1:1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

const healthConfig = `
[[pbr_map]]
  name = "office"

  [[pbr_map.seq]]
    seq = 10
    src_ip = "10.0.0.0/24"
    table = 1000

[[pbr_policy]]
  interface = "br0"
  pbr_map = "office"
`

func TestCheckHealth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pbrsync.conf")
	require.NoError(t, os.WriteFile(path, []byte(healthConfig), 0o644))

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	hasher := config.NewConfigHasher(path)
	require.NoError(t, hasher.SetActiveConfig(cfg))

	rules := &fakeRules{rules: []pbrmap.RuleView{
		{Interface: "br0", Map: "office", Seq: 10, Priority: 310, Table: 1000, Desired: true, Installed: true},
	}}

	rec := get(t, NewRouter(rules, hasher, nil), "/api/v1/health", "127.0.0.1:1")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthCheckResponse
	decodeData(t, rec, &resp)
	assert.True(t, resp.Healthy)
	assert.True(t, resp.Checks["config"].Passed)
	assert.True(t, resp.Checks["rules"].Passed)

	// Editing the file makes the running config outdated.
	require.NoError(t, os.WriteFile(path, []byte(healthConfig+"\n[general]\n  reassert_deleted = false\n"), 0o644))
	rules.rules[0].Installed = false

	rec = get(t, NewRouter(rules, hasher, nil), "/api/v1/health", "127.0.0.1:1")
	decodeData(t, rec, &resp)
	assert.False(t, resp.Healthy)
	assert.False(t, resp.Checks["config"].Passed)
	assert.False(t, resp.Checks["rules"].Passed)
	assert.Contains(t, resp.Checks["rules"].Message, "1 of 1")
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/pbr", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), string(ErrCodeInternalError))
}

func TestRecoveryRepanicsOnAbort(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/pbr", nil))
	})
}
