package http_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	perr "devflow/internal/platform/errors"
	pnet "devflow/internal/platform/net"
	phttp "devflow/internal/platform/net/http"
)

func reqWithReqID(method, path, rid string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	return req.WithContext(pnet.WithRequest(req.Context(), rid))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) phttp.Envelope {
	t.Helper()
	var env phttp.Envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal: %v body=%s", err, rec.Body.String())
	}
	return env
}

func TestRespondOKAndError(t *testing.T) {
	rec := httptest.NewRecorder()
	phttp.RespondOK(rec, reqWithReqID("GET", "/x", "rid-1"), map[string]string{"a": "b"})
	env := decode(t, rec)
	if rec.Code != http.StatusOK || env.StatusCode != 200 || env.RequestID != "rid-1" || env.Data == nil {
		t.Fatalf("bad envelope: %d %+v", rec.Code, env)
	}

	rec = httptest.NewRecorder()
	phttp.RespondError(rec, reqWithReqID("GET", "/err", "rid-3"), perr.New(perr.ErrorCodeNotFound, "nope"))
	env = decode(t, rec)
	if rec.Code != http.StatusNotFound || env.Code != perr.ErrorCodeNotFound || env.Error == "" || env.RequestID != "rid-3" {
		t.Fatalf("bad error envelope: %d %+v", rec.Code, env)
	}
}

func TestHandleStatuses(t *testing.T) {
	tests := []struct {
		name string
		resp phttp.Response
		code int
	}{
		{"ok", phttp.OK(map[string]any{"x": 1}), http.StatusOK},
		{"created", phttp.Created(map[string]any{"id": 99}), http.StatusCreated},
		{"no content", phttp.NoContent(), http.StatusNoContent},
		{"validation", phttp.Error(perr.Validationf("bad window")), http.StatusBadRequest},
		{"unavailable", phttp.Error(perr.Unavailablef("no source")), http.StatusServiceUnavailable},
		{"generic", phttp.Error(errors.New("boom")), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := phttp.Handle(func(*http.Request) phttp.Response { return tc.resp })
			rec := httptest.NewRecorder()
			h(rec, reqWithReqID("GET", "/", "rid"))
			if rec.Code != tc.code {
				t.Fatalf("code = %d want %d", rec.Code, tc.code)
			}
			if tc.code == http.StatusNoContent && rec.Body.Len() != 0 {
				t.Fatalf("204 should have empty body, got %q", rec.Body.String())
			}
		})
	}
}

func TestHandleHeaders(t *testing.T) {
	h := phttp.Handle(func(*http.Request) phttp.Response {
		resp := phttp.OK("hello")
		resp.Header = http.Header{}
		resp.Header.Set("X-Thing", "yup")
		return resp
	})
	rec := httptest.NewRecorder()
	h(rec, reqWithReqID("GET", "/hdr", "rid-8"))
	if got := rec.Header().Get("X-Thing"); got != "yup" {
		t.Fatalf("expected header override, got %q", got)
	}
	if s, ok := decode(t, rec).Data.(string); !ok || s != "hello" {
		t.Fatalf("data = %#v", s)
	}
}

func TestList(t *testing.T) {
	h := phttp.Handle(func(*http.Request) phttp.Response {
		return phttp.List([]int{1, 2}, 10, 2, 5, "abc")
	})
	rec := httptest.NewRecorder()
	h(rec, reqWithReqID("GET", "/list", "rid-list"))

	data, ok := decode(t, rec).Data.(map[string]any)
	if !ok {
		t.Fatalf("expected map data")
	}
	if items, ok := data["items"].([]any); !ok || len(items) != 2 {
		t.Fatalf("items = %#v", data["items"])
	}
	page, _ := data["page"].(map[string]any)
	if total, _ := page["total"].(float64); int(total) != 10 {
		t.Fatalf("page.total = %#v", page["total"])
	}
	if cursor, _ := page["cursor"].(string); cursor != "abc" {
		t.Fatalf("page.cursor = %#v", page["cursor"])
	}
}
