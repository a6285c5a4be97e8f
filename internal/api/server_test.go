package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/TimurManjosov/cclengine/internal/ccl"
	"github.com/TimurManjosov/cclengine/internal/jfn"
	"github.com/TimurManjosov/cclengine/internal/rules"
	"github.com/TimurManjosov/cclengine/internal/store"
	"github.com/TimurManjosov/cclengine/internal/testutil"
	"github.com/rs/zerolog"
)

const testAdminKey = "test-admin-key-0123456789"

var testNow = time.Date(2022, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	engine, err := ccl.NewBundled(ccl.Options{Country: "DE", Version: "1.0.0", Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewBundled: %v", err)
	}
	st, err := store.NewBundledStore()
	if err != nil {
		t.Fatalf("NewBundledStore: %v", err)
	}
	srv := NewServer(Options{
		Engine:      engine,
		Store:       st,
		AdminAPIKey: testAdminKey,
		Logger:      zerolog.Nop(),
	})
	srv.now = func() time.Time { return testNow }
	return srv, st
}

func nextVersion(t *testing.T, version string) string {
	t.Helper()
	return marshalConfiguration(t, bundledVersion(t, version))
}

func bundledVersion(t *testing.T, version string) rules.Configuration {
	t.Helper()
	bundled, err := rules.Bundled()
	if err != nil {
		t.Fatalf("Bundled: %v", err)
	}
	c := bundled[0]
	c.Identifier = "CCL-DE-" + version
	c.Version = version
	return c
}

func marshalConfiguration(t *testing.T, c rules.Configuration) string {
	t.Helper()
	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return string(data)
}

func decodeBody[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("decode response %s: %v", body, err)
	}
	return v
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := (&testutil.HTTPRequest{Method: http.MethodGet, Path: "/healthz"}).Do(t, srv.Router())

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("Expected body 'ok', got %s", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := (&testutil.HTTPRequest{Method: http.MethodGet, Path: "/metrics"}).Do(t, srv.Router())
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
}

func TestListConfigurations(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rr := (&testutil.HTTPRequest{Method: http.MethodGet, Path: "/v1/configurations"}).Do(t, handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rr.Code)
	}
	etag := rr.Header().Get("ETag")
	if etag == "" || etag != srv.engine.Registry().ETag() {
		t.Errorf("ETag header = %q, registry = %q", etag, srv.engine.Registry().ETag())
	}
	if rr.Header().Get("Cache-Control") != "no-cache" {
		t.Errorf("Cache-Control = %q", rr.Header().Get("Cache-Control"))
	}

	resp := decodeBody[configurationsResponse](t, rr.Body.Bytes())
	if len(resp.Configurations) != 1 {
		t.Fatalf("Expected 1 configuration, got %d", len(resp.Configurations))
	}
	got := resp.Configurations[0]
	if got.Key != "DE@1.0.0" || !got.Default {
		t.Errorf("unexpected summary %+v", got)
	}
	found := false
	for _, fn := range got.Functions {
		if fn == "getDccWalletInfo" {
			found = true
		}
	}
	if !found {
		t.Errorf("functions %v lack getDccWalletInfo", got.Functions)
	}
}

func TestListConfigurations_NotModified(t *testing.T) {
	srv, _ := newTestServer(t)
	etag := srv.engine.Registry().ETag()

	rr := (&testutil.HTTPRequest{
		Method:  http.MethodGet,
		Path:    "/v1/configurations",
		Headers: map[string]string{"If-None-Match": etag},
	}).Do(t, srv.Router())
	if rr.Code != http.StatusNotModified {
		t.Fatalf("Expected status 304, got %d", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rr.Body.String())
	}

	rr = (&testutil.HTTPRequest{
		Method:  http.MethodGet,
		Path:    "/v1/configurations",
		Headers: map[string]string{"If-None-Match": `W/"stale"`},
	}).Do(t, srv.Router())
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 for stale ETag, got %d", rr.Code)
	}
}

func TestGetConfiguration(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	rr := (&testutil.HTTPRequest{Method: http.MethodGet, Path: "/v1/configurations/de/1.0"}).Do(t, handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	c := decodeBody[rules.Configuration](t, rr.Body.Bytes())
	if c.Identifier != "CCL-DE-0001" {
		t.Errorf("Identifier = %q", c.Identifier)
	}

	rr = (&testutil.HTTPRequest{Method: http.MethodGet, Path: "/v1/configurations/AT/1.0.0"}).Do(t, handler)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", rr.Code)
	}
}

func TestUpsertConfiguration(t *testing.T) {
	srv, st := newTestServer(t)
	handler := srv.Router()
	before := srv.engine.Registry().ETag()

	rr := (&testutil.HTTPRequest{
		Method:  http.MethodPut,
		Path:    "/v1/configurations",
		Body:    nextVersion(t, "1.1.0"),
		Headers: map[string]string{"Authorization": "Bearer " + testAdminKey},
	}).Do(t, handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decodeBody[writeResponse](t, rr.Body.Bytes())
	if !resp.OK || resp.ETag == before {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.ETag != srv.engine.Registry().ETag() {
		t.Errorf("response ETag %q, registry %q", resp.ETag, srv.engine.Registry().ETag())
	}
	if _, err := st.GetConfiguration(t.Context(), "DE", "1.1.0"); err != nil {
		t.Errorf("stored configuration missing: %v", err)
	}
	if n := len(srv.engine.Registry().Configurations()); n != 2 {
		t.Errorf("Expected 2 loaded configurations, got %d", n)
	}
}

func TestUpsertConfiguration_Auth(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"invalid token", "Bearer nope", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &testutil.HTTPRequest{Method: http.MethodPut, Path: "/v1/configurations", Body: nextVersion(t, "1.1.0")}
			if tt.header != "" {
				req.Headers = map[string]string{"Authorization": tt.header}
			}
			rr := req.Do(t, handler)
			if rr.Code != tt.want {
				t.Errorf("Expected status %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestUpsertConfiguration_Rejected(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	before := srv.engine.Registry().ETag()

	broken := bundledVersion(t, "1.2.0")
	broken.Logic.JfnDescriptors = []jfn.Descriptor{{
		Name:       "broken",
		Definition: jfn.Definition{Logic: map[string]any{"noSuchOperator": []any{1.0}}},
	}}
	malformed := marshalConfiguration(t, broken)

	tests := []struct {
		name     string
		body     string
		wantCode ErrorCode
	}{
		{"invalid json", `{"Identifier":`, ErrCodeInvalidJSON},
		{"schema violation", `{"Identifier":"x","Type":"Other"}`, ErrCodeSchemaViolation},
		{"malformed descriptor", malformed, ErrCodeInvalidDescriptor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := (&testutil.HTTPRequest{
				Method:  http.MethodPut,
				Path:    "/v1/configurations",
				Body:    tt.body,
				Headers: map[string]string{"Authorization": "Bearer " + testAdminKey},
			}).Do(t, handler)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("Expected status 400, got %d: %s", rr.Code, rr.Body.String())
			}
			resp := decodeBody[ErrorResponse](t, rr.Body.Bytes())
			if resp.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s (%s)", tt.wantCode, resp.Code, resp.Message)
			}
		})
	}
	if srv.engine.Registry().ETag() != before {
		t.Error("rejected writes must not change the registry")
	}
}

func TestDeleteConfiguration(t *testing.T) {
	srv, _ := newTestServer(t)
	handler := srv.Router()
	auth := map[string]string{"Authorization": "Bearer " + testAdminKey}

	rr := (&testutil.HTTPRequest{Method: http.MethodPut, Path: "/v1/configurations", Body: nextVersion(t, "1.1.0"), Headers: auth}).Do(t, handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("upsert: status %d: %s", rr.Code, rr.Body.String())
	}

	rr = (&testutil.HTTPRequest{Method: http.MethodDelete, Path: "/v1/configurations/DE/1.0.0", Headers: auth}).Do(t, handler)
	if rr.Code != http.StatusConflict {
		t.Errorf("deleting the default: expected 409, got %d", rr.Code)
	}

	rr = (&testutil.HTTPRequest{Method: http.MethodDelete, Path: "/v1/configurations/DE/1.1.0", Headers: auth}).Do(t, handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: status %d: %s", rr.Code, rr.Body.String())
	}
	if n := len(srv.engine.Registry().Configurations()); n != 1 {
		t.Errorf("Expected 1 loaded configuration, got %d", n)
	}
}

func TestWritesDisabledWithoutAdminKey(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.adminKey = ""
	rr := (&testutil.HTTPRequest{Method: http.MethodPut, Path: "/v1/configurations", Body: nextVersion(t, "1.1.0")}).Do(t, srv.Router())
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 when writes are disabled, got %d", rr.Code)
	}
}
