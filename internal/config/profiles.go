package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
)

// ErrUnknownProfile is returned when a named profile does not exist.
var ErrUnknownProfile = errors.New("config: unknown profile")

// Profiles holds all named profiles and tracks which one is active.
type Profiles struct {
	Active   string             `toml:"active"`
	Profiles map[string]Profile `toml:"profiles"`
}

// Profile is a named API connection plus per-screen tuning.
type Profile struct {
	URL     string                    `toml:"url"`
	Token   string                    `toml:"token,omitempty"`
	NATSURL string                    `toml:"nats_url,omitempty"`
	Screens map[string]ScreenOverride `toml:"screens,omitempty"`
}

// ScreenOverride tunes one screen of the catalog.
type ScreenOverride struct {
	Debounce  Duration `toml:"debounce,omitempty"`
	PageSize  int      `toml:"page_size,omitempty"`
	Immediate []string `toml:"immediate,omitempty"`
}

// Duration is a time.Duration written as "400ms" in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// IsZero lets the encoder omit unset durations.
func (d Duration) IsZero() bool { return d.Duration == 0 }

// ProfilesPath returns ~/.local/state/eventify/profiles.toml, creating the
// directory. EVENTIFY_PROFILES overrides the location.
func ProfilesPath() (string, error) {
	if p := os.Getenv(EnvPrefix + "PROFILES"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".local", "state", "eventify")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.toml"), nil
}

// LoadProfiles reads the profiles file at path. A missing file yields an
// empty set.
func LoadProfiles(path string) (Profiles, error) {
	var p Profiles
	if _, err := toml.DecodeFile(path, &p); err != nil {
		if os.IsNotExist(err) {
			return Profiles{Profiles: map[string]Profile{}}, nil
		}
		return Profiles{}, fmt.Errorf("reading %s: %w", path, err)
	}
	if p.Profiles == nil {
		p.Profiles = map[string]Profile{}
	}
	return p, nil
}

// SaveProfiles writes p to path with owner-only permissions.
func SaveProfiles(path string, p Profiles) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(p)
}

// Names returns the profile names sorted.
func (p Profiles) Names() []string {
	names := make([]string, 0, len(p.Profiles))
	for name := range p.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get returns the named profile, or the active one when name is empty. An
// empty name with no active profile returns the zero Profile and no error.
func (p Profiles) Get(name string) (Profile, error) {
	if name == "" {
		name = p.Active
		if name == "" {
			return Profile{}, nil
		}
	}
	prof, ok := p.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return prof, nil
}

// Use makes name the active profile.
func (p *Profiles) Use(name string) error {
	if _, ok := p.Profiles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	p.Active = name
	return nil
}

// Remove deletes a profile, clearing the active marker if it pointed there.
func (p *Profiles) Remove(name string) error {
	if _, ok := p.Profiles[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	delete(p.Profiles, name)
	if p.Active == name {
		p.Active = ""
	}
	return nil
}

// Override returns the tuning for screen, with the debounce clamped.
func (p Profile) Override(screen string) (ScreenOverride, bool) {
	o, ok := p.Screens[screen]
	if !ok {
		return ScreenOverride{}, false
	}
	o.Debounce.Duration = ClampDebounce(o.Debounce.Duration)
	if o.PageSize != 0 {
		o.PageSize = ClampPageSize(o.PageSize)
	}
	return o, true
}
