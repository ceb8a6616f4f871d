package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/eventify/internal/config"
)

func useProfilesFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.toml")
	t.Setenv("EVENTIFY_PROFILES", path)
	return path
}

func TestEditProfiles(t *testing.T) {
	path := useProfilesFile(t)

	err := editProfiles(func(p *config.Profiles) error {
		p.Profiles["prod"] = config.Profile{URL: "https://api.eventify.test", Token: "secret-token-1234"}
		return p.Use("prod")
	})
	if err != nil {
		t.Fatal(err)
	}
	p, err := config.LoadProfiles(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Active != "prod" || p.Profiles["prod"].URL != "https://api.eventify.test" {
		t.Errorf("profiles = %+v", p)
	}

	// A failing edit leaves the file alone.
	err = editProfiles(func(p *config.Profiles) error { return p.Use("missing") })
	if err == nil {
		t.Fatal("editProfiles() = nil error")
	}
	if p, _ := config.LoadProfiles(path); p.Active != "prod" {
		t.Errorf("Active = %q after failed edit", p.Active)
	}
}

func TestPrintProfiles(t *testing.T) {
	var buf bytes.Buffer
	if err := printProfiles(&buf, config.Profiles{Profiles: map[string]config.Profile{}}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no profiles configured") {
		t.Errorf("empty output = %q", buf.String())
	}

	buf.Reset()
	p := config.Profiles{
		Active: "prod",
		Profiles: map[string]config.Profile{
			"prod":  {URL: "https://api.eventify.test", Token: "secret-token-1234"},
			"local": {URL: "http://localhost:8000", NATSURL: "nats://localhost:4222"},
		},
	}
	if err := printProfiles(&buf, p); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "* prod") || !strings.Contains(out, "secret-t...") {
		t.Errorf("output:\n%s", out)
	}
	if strings.Contains(out, "secret-token-1234") {
		t.Errorf("full token printed:\n%s", out)
	}
	if strings.Index(out, "local") > strings.Index(out, "prod") {
		t.Errorf("profiles not sorted:\n%s", out)
	}
}

func TestPrintProfile(t *testing.T) {
	var buf bytes.Buffer
	prof := config.Profile{
		URL:   "https://api.eventify.test",
		Token: "secret-token-1234",
		Screens: map[string]config.ScreenOverride{
			"events": {Debounce: config.Duration{Duration: 600 * time.Millisecond}, Immediate: []string{"search"}},
		},
	}
	if err := printProfile(&buf, "prod", true, prof); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"prod (active)", "secret-t*********", "screen events:", "debounce=600ms", "immediate=search"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTokenMasking(t *testing.T) {
	for _, tc := range []struct{ in, short, masked string }{
		{"", "", ""},
		{"abc", "abc", "abc"},
		{"abcdefghij", "abcdefgh...", "abcdefgh**"},
	} {
		if got := shortToken(tc.in); got != tc.short {
			t.Errorf("shortToken(%q) = %q, want %q", tc.in, got, tc.short)
		}
		if got := maskToken(tc.in); got != tc.masked {
			t.Errorf("maskToken(%q) = %q, want %q", tc.in, got, tc.masked)
		}
	}
}
