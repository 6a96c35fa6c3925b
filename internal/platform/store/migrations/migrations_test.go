package migrations

import (
	"io/fs"
	"testing"
)

func TestDriverURL(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"postgres://u:p@h:5432/db?sslmode=disable": "pgx5://u:p@h:5432/db?sslmode=disable",
		"postgresql://h/db":                        "pgx5://h/db",
		"pgx5://h/db":                              "pgx5://h/db",
	}
	for in, want := range cases {
		if got := driverURL(in); got != want {
			t.Fatalf("driverURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedPairs(t *testing.T) {
	t.Parallel()
	ups, _ := fs.Glob(files, "*.up.sql")
	downs, _ := fs.Glob(files, "*.down.sql")
	if len(ups) == 0 || len(ups) != len(downs) {
		t.Fatalf("unbalanced migrations: %d up, %d down", len(ups), len(downs))
	}
}
