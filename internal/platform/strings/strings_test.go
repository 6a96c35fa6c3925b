package strings

import (
	"testing"

	"devflow/internal/platform/testkit"
)

func TestIfEmpty(t *testing.T) {
	t.Parallel()

	def := []string{"GET", "POST"}
	if got := IfEmpty(nil, def); len(got) != 2 || got[0] != "GET" {
		t.Fatalf("nil input: got %#v", got)
	}
	if got := IfEmpty([]string{}, def); len(got) != 2 {
		t.Fatalf("empty input: got %#v", got)
	}
	if got := IfEmpty([]int{7}, []int{1, 2}); len(got) != 1 || got[0] != 7 {
		t.Fatalf("non empty input: got %#v", got)
	}
}

func TestMustString(t *testing.T) {
	if got := MustString("quality", "module name"); got != "quality" {
		t.Fatalf("got %q", got)
	}
	for _, in := range []string{"", "   ", "\t\n"} {
		testkit.MustPanic(t, func() { MustString(in, "module name") })
	}
}

func TestMustPrefix(t *testing.T) {
	cases := map[string]string{
		"metrics":     "/metrics",
		"/metrics":    "/metrics",
		"/metrics/":   "/metrics",
		" /ingest ":   "/ingest",
		"//quality//": "/quality",
		"/api/v1/":    "/api/v1",
	}
	for in, want := range cases {
		if got := MustPrefix(in); got != want {
			t.Errorf("MustPrefix(%q) = %q, want %q", in, got, want)
		}
	}
	for _, in := range []string{"", "/", " / ", "//"} {
		testkit.MustPanic(t, func() { MustPrefix(in) })
	}
}
