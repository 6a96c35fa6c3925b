package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	perr "devflow/internal/platform/errors"
)

type windowDTO struct {
	Days int `json:"window_days" validate:"required,min=1,max=365"`
}

func TestJSONHandler(t *testing.T) {
	echo := func(_ *http.Request, in windowDTO) (any, error) {
		switch in.Days {
		case 13:
			return nil, errors.New("window store offline")
		case 14:
			return nil, perr.NotFoundf("no snapshot for window 14")
		case 90:
			return Created(in.Days), nil
		}
		return map[string]int{"window_days": in.Days}, nil
	}
	cases := []struct {
		name, body string
		status     int
		contains   string
	}{
		{"ok", `{"window_days":28}`, http.StatusOK, `"window_days":28`},
		{"created passthrough", `{"window_days":90}`, http.StatusCreated, `"data":90`},
		{"broken json", `{`, http.StatusBadRequest, "invalid JSON"},
		{"below min", `{"window_days":0}`, http.StatusBadRequest, "window_days"},
		{"above max", `{"window_days":400}`, http.StatusBadRequest, "window_days must be at most 365"},
		{"unknown field", `{"window_days":7,"x":1}`, http.StatusBadRequest, "unknown field"},
		{"handler error", `{"window_days":13}`, http.StatusInternalServerError, "window store offline"},
		{"not found", `{"window_days":14}`, http.StatusNotFound, "no snapshot"},
	}
	h := JSONHandler(echo)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodPost, "/metrics/compute", strings.NewReader(tc.body)))
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tc.contains) {
				t.Fatalf("body %s missing %q", rec.Body.String(), tc.contains)
			}
			var env Envelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil || env.StatusCode != tc.status {
				t.Fatalf("envelope = %+v err=%v", env, err)
			}
		})
	}
}

func TestJSONHandlerNoBody(t *testing.T) {
	h := JSONHandlerNoBody(func(*http.Request) (any, error) { return []string{"alice", "bob"}, nil })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/metrics/developers", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"alice"`) {
		t.Fatalf("%d %s", rec.Code, rec.Body.String())
	}
}
