package bind

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	perr "devflow/internal/platform/errors"

	"github.com/go-playground/validator/v10"
)

type computeBody struct {
	DeveloperID string `json:"developer_id" validate:"required,devref,max=64"`
	WindowDays  int    `json:"window_days" validate:"required,min=1,max=365"`
}

func post(body string) *http.Request {
	if body == "" {
		return httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	}
	return httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
}

func TestParseJSON(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		opts  []Options
		code  perr.ErrorCode
		field string
		msg   string
	}{
		{name: "ok", body: `{"developer_id":"alice","window_days":28}`},
		{name: "empty body", body: "", code: perr.ErrorCodeJSON},
		{name: "broken json", body: `{`, code: perr.ErrorCodeJSON},
		{name: "unknown field", body: `{"developer_id":"alice","window_days":28,"x":1}`, code: perr.ErrorCodeJSON},
		{name: "unknown field allowed", body: `{"developer_id":"alice","window_days":28,"x":1}`, opts: []Options{{MaxBytes: 1 << 10}}},
		{name: "over limit", body: `{"developer_id":"alice","window_days":28}`, opts: []Options{{MaxBytes: 8, DisallowUnknown: true}}, code: perr.ErrorCodeJSON},
		{name: "no limit", body: `{"developer_id":"alice","window_days":28}`, opts: []Options{{DisallowUnknown: true}}},
		{name: "window too wide", body: `{"developer_id":"alice","window_days":400}`, code: perr.ErrorCodeValidation, field: "window_days", msg: "window_days must be at most 365"},
		{name: "window zero", body: `{"developer_id":"alice","window_days":0}`, code: perr.ErrorCodeValidation, field: "window_days"},
		{name: "padded id", body: `{"developer_id":" alice","window_days":28}`, code: perr.ErrorCodeValidation, field: "developer_id", msg: "developer_id must be a developer id, email or username"},
		{name: "id with space", body: `{"developer_id":"alice smith","window_days":28}`, code: perr.ErrorCodeValidation, field: "developer_id"},
		{name: "email id", body: `{"developer_id":"alice@example.com","window_days":28}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseJSON[computeBody](post(tc.body), tc.opts...)
			if tc.code == perr.ErrorCodeUnknown {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.DeveloperID == "" || got.WindowDays == 0 {
					t.Fatalf("payload not decoded: %+v", got)
				}
				return
			}
			if perr.CodeOf(err) != tc.code {
				t.Fatalf("code = %v, want %v (%v)", perr.CodeOf(err), tc.code, err)
			}
			if tc.field != "" {
				if e, ok := perr.As(err); !ok || e.Field() != tc.field {
					t.Fatalf("field not attached: %v", err)
				}
			}
			if tc.msg != "" && perr.WireFrom(err).Message != tc.msg {
				t.Fatalf("message = %q, want %q", perr.WireFrom(err).Message, tc.msg)
			}
		})
	}
}

func TestParseJSONEmptyBodyOnSafeMethod(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	got, err := ParseJSON[computeBody](req)
	if err != nil || got != (computeBody{}) {
		t.Fatalf("want zero value and no error, got %+v %v", got, err)
	}
}

func TestParseJSONAllowEmptyBody(t *testing.T) {
	type note struct {
		Note string `json:"note"`
	}
	got, err := ParseJSON[note](post(""), Options{AllowEmptyBody: true})
	if err != nil || got != (note{}) {
		t.Fatalf("want zero value, got %+v %v", got, err)
	}
}

func TestParseJSONTrailingData(t *testing.T) {
	orig := hasMore
	hasMore = func(*json.Decoder) bool { return true }
	defer func() { hasMore = orig }()

	_, err := ParseJSON[computeBody](post(`{"developer_id":"alice","window_days":28}`))
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("want JSON error, got %v", err)
	}
}

func TestParseJSONNonStruct(t *testing.T) {
	_, err := ParseJSON[int](post(`5`))
	if perr.CodeOf(err) != perr.ErrorCodeJSON {
		t.Fatalf("want JSON error for validator misuse, got %v", err)
	}
}

func TestFieldNames(t *testing.T) {
	type s struct {
		Tagged int `json:"tagged,omitempty" validate:"min=1"`
		Hidden int `json:"-" validate:"min=1"`
		Plain  int `validate:"min=1"`
	}
	err := Get().V.Struct(s{Tagged: 0, Hidden: 1, Plain: 1})
	if f, msg := FieldAndMessage(err); f != "tagged" || msg != "tagged must be at least 1" {
		t.Fatalf("got %q %q", f, msg)
	}
	err = Get().V.Struct(s{Tagged: 1, Hidden: 0, Plain: 1})
	if f, _ := FieldAndMessage(err); f != "Hidden" {
		t.Fatalf("got %q", f)
	}
	err = Get().V.Struct(s{Tagged: 1, Hidden: 1, Plain: 0})
	if f, _ := FieldAndMessage(err); f != "Plain" {
		t.Fatalf("got %q", f)
	}
}

func TestFieldAndMessagePassthrough(t *testing.T) {
	if f, msg := FieldAndMessage(errors.New("boom")); f != "" || msg != "boom" {
		t.Fatalf("got %q %q", f, msg)
	}
	if f, msg := FieldAndMessage(nil); f != "" || msg != "" {
		t.Fatalf("got %q %q", f, msg)
	}
}

func TestRegisterValidationOverwrites(t *testing.T) {
	if err := RegisterValidation("always", func(validator.FieldLevel) bool { return false }); err != nil {
		t.Fatal(err)
	}
	if err := RegisterValidation("always", func(validator.FieldLevel) bool { return true }); err != nil {
		t.Fatal(err)
	}
	type s struct {
		N int `json:"n" validate:"always"`
	}
	if err := Get().V.Struct(s{}); err != nil {
		t.Fatalf("second registration should win: %v", err)
	}
}
