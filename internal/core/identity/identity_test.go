package identity

import (
	"reflect"
	"sync"
	"testing"
)

func fixture() Config {
	return Config{
		BotPatterns: []string{`\[bot\]$`, `^renovate`, `([`},
		Developers: []Developer{
			{
				ID:              "alice",
				DisplayName:     "Alice Liddell",
				PrimaryEmail:    "alice@corp.example",
				PrimaryUsername: "aliddell",
				AliasEmails:     []string{"Alice@Old.Example", "alice@corp.example"},
				AliasUsernames:  []string{"alice-l"},
			},
			{
				ID:              "bob",
				PrimaryEmail:    "bob@corp.example",
				PrimaryUsername: "bob",
			},
		},
		Overrides: map[string]string{
			"laptop@home.example": "alice",
			"ghost@x.example":     "nobody",
		},
	}
}

func TestIsBot(t *testing.T) {
	t.Parallel()
	r := New(fixture())
	tests := []struct {
		name                 string
		user, email, display string
		want                 bool
	}{
		{"suffix", "deploy[bot]", "", "", true},
		{"case insensitive", "Renovate-Runner", "", "", true},
		{"matches display name", "", "", "Team [BOT]", true},
		{"human", "aliddell", "alice@corp.example", "Alice", false},
		{"all empty", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.IsBot(tt.user, tt.email, tt.display); got != tt.want {
				t.Fatalf("IsBot(%q,%q,%q) = %v, want %v", tt.user, tt.email, tt.display, got, tt.want)
			}
		})
	}
}

func TestInvalidPatternDropped(t *testing.T) {
	t.Parallel()
	r := New(fixture())
	if len(r.bots) != 2 {
		t.Fatalf("want 2 compiled patterns, got %d", len(r.bots))
	}
}

func TestDefaultPatternsWhenNoneConfigured(t *testing.T) {
	t.Parallel()
	r := New(Config{})
	if !r.IsBot("project_42_bot_abc", "", "") {
		t.Fatalf("default patterns should flag project access token bots")
	}
	if !r.IsBot("", "noreply@gitlab.example", "") {
		t.Fatalf("default patterns should flag noreply senders")
	}
	if r.IsBot("robert", "robert@corp.example", "Robert") {
		t.Fatalf("robert is not a bot")
	}
}

func TestResolveCanonical(t *testing.T) {
	t.Parallel()
	r := New(fixture())
	for _, in := range []string{"ALICE@corp.example", "alice@old.example", "Alice-L", "alice", " aliddell ", "laptop@HOME.example"} {
		d, ok := r.ResolveCanonical(in)
		if !ok || d.ID != "alice" {
			t.Fatalf("ResolveCanonical(%q) = %+v, %v", in, d, ok)
		}
	}
	if _, ok := r.ResolveCanonical("ghost@x.example"); ok {
		t.Fatalf("override to an unknown developer must be dropped")
	}
	if _, ok := r.ResolveCanonical(""); ok {
		t.Fatalf("blank must not resolve")
	}
	if _, ok := r.ResolveCanonical("carol"); ok {
		t.Fatalf("unknown must not resolve")
	}
}

func TestConsolidateAliases(t *testing.T) {
	t.Parallel()
	r := New(fixture())

	got := r.ConsolidateAliases("new@elsewhere.example", "alice-l")
	want := []Alias{
		{AliasEmail, "alice@old.example"},
		{AliasUsername, "alice-l"},
		{AliasEmail, "new@elsewhere.example"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ConsolidateAliases = %+v, want %+v", got, want)
	}

	for _, a := range r.ConsolidateAliases("alice@corp.example", "aliddell") {
		if a.Value == "alice@corp.example" || a.Value == "aliddell" {
			t.Fatalf("primary identity leaked into aliases: %+v", a)
		}
	}

	if got := r.ConsolidateAliases("x@y.example", "nobody"); got != nil {
		t.Fatalf("unknown identity should give nil, got %+v", got)
	}
}

func TestIdentities(t *testing.T) {
	t.Parallel()
	r := New(fixture())

	ids := r.Identities("alice")
	wantEmails := []string{"alice@corp.example", "alice@old.example", "laptop@home.example"}
	wantUsers := []string{"alice-l", "aliddell"}
	if !reflect.DeepEqual(ids.Emails, wantEmails) {
		t.Fatalf("emails = %v, want %v", ids.Emails, wantEmails)
	}
	if !reflect.DeepEqual(ids.Usernames, wantUsers) {
		t.Fatalf("usernames = %v, want %v", ids.Usernames, wantUsers)
	}

	if ids := r.Identities("Carol@Corp.Example"); !reflect.DeepEqual(ids.Emails, []string{"carol@corp.example"}) || len(ids.Usernames) != 0 {
		t.Fatalf("unknown email = %+v", ids)
	}
	if ids := r.Identities("carol"); !reflect.DeepEqual(ids.Usernames, []string{"carol"}) || len(ids.Emails) != 0 {
		t.Fatalf("unknown username = %+v", ids)
	}
	if !r.Identities("  ").Empty() {
		t.Fatalf("blank should be empty")
	}
}

func TestIdentitiesKeepAliasKinds(t *testing.T) {
	t.Parallel()
	r := New(Config{Developers: []Developer{
		{ID: "dana", PrimaryEmail: "dana@corp.example", PrimaryUsername: "dana", AliasUsernames: []string{"Dana@Contractor"}},
		{ID: "eve", AliasEmails: []string{"eve@corp.example"}, AliasUsernames: []string{"eve-w"}},
	}})

	ids := r.Identities("dana")
	if !reflect.DeepEqual(ids.Emails, []string{"dana@corp.example"}) {
		t.Fatalf("emails = %v", ids.Emails)
	}
	if !reflect.DeepEqual(ids.Usernames, []string{"dana", "dana@contractor"}) {
		t.Fatalf("usernames = %v", ids.Usernames)
	}

	// no primaries: aliases still come from the lookup table
	ids = r.Identities("eve")
	if !reflect.DeepEqual(ids.Emails, []string{"eve@corp.example"}) || !reflect.DeepEqual(ids.Usernames, []string{"eve-w"}) {
		t.Fatalf("identities = %+v", ids)
	}
}

func TestDevelopersSkipsMissingIDs(t *testing.T) {
	t.Parallel()
	cfg := fixture()
	cfg.Developers = append(cfg.Developers, Developer{PrimaryEmail: "anon@corp.example"})
	r := New(cfg)
	if n := len(r.Developers()); n != 2 {
		t.Fatalf("Developers() len = %d", n)
	}
	if _, ok := r.ResolveCanonical("anon@corp.example"); ok {
		t.Fatalf("developer without id must not be indexed")
	}
}

func TestConcurrentLookups(t *testing.T) {
	t.Parallel()
	r := New(fixture())
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if _, ok := r.ResolveCanonical("ALICE-L"); !ok {
					t.Error("lookup failed under concurrency")
					return
				}
				_ = r.IsBot("deploy[bot]", "", "")
			}
		}()
	}
	wg.Wait()
}
