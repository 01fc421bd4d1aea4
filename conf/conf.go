// Package conf is a small registry of named integer settings with declared
// bounds, persisted to a single YAML file. Values set through the store are
// validated against the registered range; values read back are clamped so a
// hand-edited file can never hand out an out-of-range number.
package conf

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/spf13/viper"
)

// Setting describes one registered configuration value.
type Setting struct {
	ID          string
	Label       string
	Description string
	Min         int
	Max         int
	Default     int
}

type Store struct {
	mu        sync.Mutex
	v         *viper.Viper
	fileLock  *flock.Flock
	settings  map[string]Setting
	callbacks map[string]func(int)
	lastSeen  map[string]int
}

// NewStore opens (or prepares to create) the settings file at path and
// watches it for external edits.
func NewStore(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	s := &Store{
		v:         v,
		fileLock:  flock.New(path + ".lock"),
		settings:  map[string]Setting{},
		callbacks: map[string]func(int){},
		lastSeen:  map[string]int{},
	}

	v.OnConfigChange(func(fsnotify.Event) { s.reload() })
	v.WatchConfig()
	return s, nil
}

// Register adds a setting to the store, seeding the persisted file with the
// default if the value is not present yet.
func (s *Store) Register(set Setting) error {
	if set.Min > set.Max {
		return fmt.Errorf("setting %s: min %d above max %d", set.ID, set.Min, set.Max)
	}
	if set.Default < set.Min || set.Default > set.Max {
		return fmt.Errorf("setting %s: default %d outside [%d, %d]", set.ID, set.Default, set.Min, set.Max)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[set.ID] = set
	if !s.v.IsSet(set.ID) {
		s.v.Set(set.ID, set.Default)
		if err := s.persist(); err != nil {
			return fmt.Errorf("failed to seed default for %s: %w", set.ID, err)
		}
	}
	s.lastSeen[set.ID] = s.clamped(set)
	return nil
}

// Get returns the current value clamped to the setting's declared range.
func (s *Store) Get(set Setting) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clamped(set)
}

// Set validates the value against the declared range, persists it and fires
// the change callback if one is installed. It reports whether the value was
// accepted.
func (s *Store) Set(set Setting, value int) bool {
	if value < set.Min || value > set.Max {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(set.ID, value)
	if err := s.persist(); err != nil {
		// The in-memory value is still updated; a failed write only costs
		// persistence across restarts.
		log.Printf("conf: failed to persist %s: %v", set.ID, err)
	}
	s.lastSeen[set.ID] = value
	if cb := s.callbacks[set.ID]; cb != nil {
		cb(value)
	}
	return true
}

// OnChange installs a callback fired whenever the setting's value changes,
// either through Set or through an external edit of the file.
func (s *Store) OnChange(set Setting, fn func(int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[set.ID] = fn
}

func (s *Store) clamped(set Setting) int {
	value := set.Default
	if s.v.IsSet(set.ID) {
		value = s.v.GetInt(set.ID)
	}
	if value < set.Min {
		value = set.Min
	}
	if value > set.Max {
		value = set.Max
	}
	return value
}

func (s *Store) persist() error {
	if err := s.fileLock.Lock(); err != nil {
		return err
	}
	defer s.fileLock.Unlock()
	return s.v.WriteConfig()
}

// reload runs after the settings file changed on disk, firing callbacks for
// settings whose effective value moved.
func (s *Store) reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, set := range s.settings {
		value := s.clamped(set)
		if value == s.lastSeen[id] {
			continue
		}
		s.lastSeen[id] = value
		if cb := s.callbacks[id]; cb != nil {
			cb(value)
		}
	}
}
