package agent

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

//go:embed profiles.toml
var defaultProfilesTOML string

// DefaultTemperature applies to every role without an explicit temperature.
const DefaultTemperature = 0.7

// Profile is the fixed instruction and sampling setup for one role.
type Profile struct {
	Role        Role
	Label       string
	Emoji       string
	Temperature float64
	Instruction string
}

// Header returns the chat header for messages authored by this role.
func (p Profile) Header() string {
	return p.Emoji + " [" + p.Label + "]"
}

// fileProfile uses a pointer temperature so an override file can set 0.0
// explicitly and omit it otherwise.
type fileProfile struct {
	Label       string   `toml:"label"`
	Emoji       string   `toml:"emoji"`
	Temperature *float64 `toml:"temperature"`
	Instruction string   `toml:"instruction"`
}

type profileFile struct {
	Profiles map[string]fileProfile `toml:"profiles"`
}

// ProfileSet holds the active profiles. It is safe for concurrent use and
// may be reloaded while runs are in flight; a call observes one snapshot.
type ProfileSet struct {
	mu       sync.RWMutex
	profiles map[Role]Profile
}

// DefaultProfiles returns the built-in profile set.
func DefaultProfiles() *ProfileSet {
	profiles, err := parseProfiles(defaultProfilesTOML, nil)
	if err != nil {
		panic(fmt.Sprintf("agent: embedded profiles: %v", err))
	}
	return &ProfileSet{profiles: profiles}
}

// LoadProfiles returns the built-in profiles overridden by the TOML file at
// path. An empty path yields the defaults.
func LoadProfiles(path string) (*ProfileSet, error) {
	set := DefaultProfiles()
	if path == "" {
		return set, nil
	}
	if err := set.Reload(path); err != nil {
		return nil, err
	}
	return set, nil
}

// Reload re-reads the override file and swaps the active profiles. On error
// the previous profiles stay active.
func (s *ProfileSet) Reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading profiles %s: %w", path, err)
	}
	base, err := parseProfiles(defaultProfilesTOML, nil)
	if err != nil {
		return err
	}
	merged, err := parseProfiles(string(data), base)
	if err != nil {
		return fmt.Errorf("parsing profiles %s: %w", path, err)
	}
	s.mu.Lock()
	s.profiles = merged
	s.mu.Unlock()
	return nil
}

// Get returns the profile for role. Unknown roles get a generic system profile.
func (s *ProfileSet) Get(role Role) Profile {
	s.mu.RLock()
	p, ok := s.profiles[role]
	s.mu.RUnlock()
	if ok {
		return p
	}
	return Profile{Role: role, Label: "System", Emoji: "🤖", Temperature: DefaultTemperature}
}

func parseProfiles(data string, base map[Role]Profile) (map[Role]Profile, error) {
	var f profileFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, err
	}
	out := make(map[Role]Profile, len(AgentRoles()))
	for r, p := range base {
		out[r] = p
	}
	for name, fp := range f.Profiles {
		role, err := ParseRole(name)
		if err != nil {
			return nil, err
		}
		p, ok := out[role]
		if !ok {
			p = Profile{Role: role, Temperature: DefaultTemperature}
		}
		if fp.Label != "" {
			p.Label = fp.Label
		}
		if fp.Emoji != "" {
			p.Emoji = fp.Emoji
		}
		if fp.Temperature != nil {
			if *fp.Temperature < 0 || *fp.Temperature > 2 {
				return nil, fmt.Errorf("profile %s: temperature %v out of range", name, *fp.Temperature)
			}
			p.Temperature = *fp.Temperature
		}
		if fp.Instruction != "" {
			p.Instruction = fp.Instruction
		}
		out[role] = p
	}
	return out, nil
}

// WatchProfiles reloads set whenever the file at path is written or
// replaced, until ctx is done. The parent directory is watched so editors
// that rename over the file are seen.
func WatchProfiles(ctx context.Context, path string, set *ProfileSet, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating profile watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs || !event.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				if err := set.Reload(abs); err != nil {
					logger.Warn("profile reload failed", zap.String("path", abs), zap.Error(err))
					continue
				}
				logger.Info("profiles reloaded", zap.String("path", abs))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("profile watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}
