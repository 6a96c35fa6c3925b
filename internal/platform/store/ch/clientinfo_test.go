package ch

import "testing"

func TestBuildClientInfo(t *testing.T) {
	t.Parallel()
	info := BuildClientInfo(" metrics ", "v1")
	got := map[string]string{}
	for _, p := range info.Products {
		got[p.Name] = p.Version
	}
	if got["devflow"] != "v1" || got["role"] != "metrics" {
		t.Fatalf("products = %+v", info.Products)
	}
	if got["go"] == "" || got["commit"] == "" {
		t.Fatalf("go/commit should be populated: %+v", got)
	}
}

func TestOpenRejectsBadDSN(t *testing.T) {
	t.Parallel()
	if _, err := Open(t.Context(), Config{URL: "://nope"}); err == nil {
		t.Fatalf("expected parse error")
	}
}
