// Package identity maps raw commit/MR authorship onto canonical developers and flags bots
package identity

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"devflow/internal/platform/logger"
)

// DefaultBotPatterns cover the service accounts GitLab and common tooling create
var DefaultBotPatterns = []string{
	`\[bot\]$`,
	`^project_\d+_bot`,
	`^group_\d+_bot`,
	`(^|[-_.])bot$`,
	`^bot[-_.]`,
	`^(renovate|dependabot|gitlab-bot|ghost)\b`,
	`^noreply@`,
}

// AliasKind tells whether an alias is an email or a username
type AliasKind string

const (
	AliasEmail    AliasKind = "email"
	AliasUsername AliasKind = "username"
)

// Alias is one alternate identity of a developer
type Alias struct {
	Kind  AliasKind `json:"kind"`
	Value string    `json:"value"`
}

// Developer is a canonical person with their known aliases
type Developer struct {
	ID              string   `json:"id" yaml:"id"`
	DisplayName     string   `json:"display_name" yaml:"display_name"`
	PrimaryEmail    string   `json:"primary_email" yaml:"primary_email"`
	PrimaryUsername string   `json:"primary_username" yaml:"primary_username"`
	AliasEmails     []string `json:"alias_emails,omitempty" yaml:"alias_emails"`
	AliasUsernames  []string `json:"alias_usernames,omitempty" yaml:"alias_usernames"`
}

// Identities is the lowercased set of emails and usernames that count as one developer
type Identities struct {
	Emails    []string
	Usernames []string
}

// Empty reports whether there is nothing to match on
func (i Identities) Empty() bool { return len(i.Emails) == 0 && len(i.Usernames) == 0 }

// Resolver is immutable once built and safe for concurrent use
type Resolver struct {
	bots  []*regexp.Regexp
	table map[string]*Developer
	devs  []Developer
	log   logger.Logger
}

// New compiles bot patterns and builds the lookup table
// Patterns that fail to compile are logged and dropped
func New(cfg Config) *Resolver {
	r := &Resolver{
		table: map[string]*Developer{},
		log:   *logger.Named("identity"),
	}

	patterns := cfg.BotPatterns
	if len(patterns) == 0 {
		patterns = DefaultBotPatterns
	}
	for _, p := range patterns {
		rx, err := regexp.Compile("(?i)" + p)
		if err != nil {
			r.log.Warn().Err(err).Str("pattern", p).Msg("dropping invalid bot pattern")
			continue
		}
		r.bots = append(r.bots, rx)
	}

	r.devs = make([]Developer, len(cfg.Developers))
	copy(r.devs, cfg.Developers)
	byID := make(map[string]*Developer, len(r.devs))
	for i := range r.devs {
		d := &r.devs[i]
		if d.ID == "" {
			r.log.Warn().Str("email", d.PrimaryEmail).Msg("dropping developer without id")
			continue
		}
		byID[key(d.ID)] = d
		r.put(d.ID, d)
		r.put(d.PrimaryEmail, d)
		r.put(d.PrimaryUsername, d)
		for _, a := range d.AliasEmails {
			r.put(a, d)
		}
		for _, a := range d.AliasUsernames {
			r.put(a, d)
		}
	}

	// overrides win over anything derived from the developer list
	for alias, id := range cfg.Overrides {
		d, ok := byID[key(id)]
		if !ok {
			r.log.Warn().Str("alias", alias).Str("developer_id", id).Msg("override points at unknown developer")
			continue
		}
		if k := key(alias); k != "" {
			r.table[k] = d
		}
	}

	r.log.Debug().Int("developers", len(byID)).Int("keys", len(r.table)).Int("bot_patterns", len(r.bots)).Msg("identity table built")
	return r
}

// put keeps the first owner of a key so one alias cannot silently move between people
func (r *Resolver) put(v string, d *Developer) {
	k := key(v)
	if k == "" {
		return
	}
	if prev, ok := r.table[k]; ok && prev.ID != d.ID {
		r.log.Warn().Str("key", k).Str("kept", prev.ID).Str("ignored", d.ID).Msg("alias claimed by two developers")
		return
	}
	r.table[k] = d
}

// key folds case the unicode way; a Caser is not shared across goroutines
func key(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	return cases.Fold().String(v)
}

// IsBot reports whether any bot pattern matches any of the inputs
func (r *Resolver) IsBot(username, email, displayName string) bool {
	for _, in := range [...]string{username, email, displayName} {
		if in == "" {
			continue
		}
		for _, rx := range r.bots {
			if rx.MatchString(in) {
				return true
			}
		}
	}
	return false
}

// ResolveCanonical looks up a developer by id, email or username
func (r *Resolver) ResolveCanonical(value string) (Developer, bool) {
	d, ok := r.table[key(value)]
	if !ok {
		return Developer{}, false
	}
	return *d, true
}

// ConsolidateAliases lists every alias of the developer behind email or username,
// leaving out the canonical primary identity; nil when neither resolves
func (r *Resolver) ConsolidateAliases(email, username string) []Alias {
	d, ok := r.ResolveCanonical(email)
	if !ok {
		d, ok = r.ResolveCanonical(username)
	}
	if !ok {
		return nil
	}

	pe, pu := key(d.PrimaryEmail), key(d.PrimaryUsername)
	seen := map[Alias]bool{}
	var out []Alias
	add := func(kind AliasKind, v, primary string) {
		k := key(v)
		if k == "" || k == primary {
			return
		}
		a := Alias{Kind: kind, Value: k}
		if seen[a] {
			return
		}
		seen[a] = true
		out = append(out, a)
	}

	for _, a := range d.AliasEmails {
		add(AliasEmail, a, pe)
	}
	for _, a := range d.AliasUsernames {
		add(AliasUsername, a, pu)
	}
	add(AliasEmail, email, pe)
	add(AliasUsername, username, pu)
	return out
}

// Identities returns everything that counts as value's owner; an unknown value
// stands for itself, as an email when it has an @ and a username otherwise
func (r *Resolver) Identities(value string) Identities {
	d, ok := r.ResolveCanonical(value)
	if !ok {
		k := key(value)
		switch {
		case k == "":
			return Identities{}
		case strings.Contains(k, "@"):
			return Identities{Emails: []string{k}}
		default:
			return Identities{Usernames: []string{k}}
		}
	}

	var ids Identities
	ids.Emails = appendKeys(ids.Emails, d.PrimaryEmail)
	ids.Usernames = appendKeys(ids.Usernames, d.PrimaryUsername)
	for _, a := range r.ConsolidateAliases(d.PrimaryEmail, d.PrimaryUsername) {
		switch a.Kind {
		case AliasEmail:
			ids.Emails = appendKeys(ids.Emails, a.Value)
		case AliasUsername:
			ids.Usernames = appendKeys(ids.Usernames, a.Value)
		}
	}

	// overrides, and aliases of a developer without primaries, only live in the table
	for k, owner := range r.table {
		if owner.ID != d.ID || k == key(d.ID) {
			continue
		}
		if slices.Contains(ids.Emails, k) || slices.Contains(ids.Usernames, k) {
			continue
		}
		if strings.Contains(k, "@") {
			ids.Emails = appendKeys(ids.Emails, k)
		} else {
			ids.Usernames = appendKeys(ids.Usernames, k)
		}
	}
	slices.Sort(ids.Emails)
	slices.Sort(ids.Usernames)
	return ids
}

func appendKeys(dst []string, vs ...string) []string {
	for _, v := range vs {
		if k := key(v); k != "" && !slices.Contains(dst, k) {
			dst = append(dst, k)
		}
	}
	return dst
}

// Developers returns the configured developers in file order
func (r *Resolver) Developers() []Developer {
	out := make([]Developer, 0, len(r.devs))
	for _, d := range r.devs {
		if d.ID != "" {
			out = append(out, d)
		}
	}
	return out
}
