package nodestore

import (
	"fmt"
	"sort"
	"sync"
)

// BackendFactory is a function that creates a new backend instance.
type BackendFactory func(config *Config) (Backend, error)

type registration struct {
	factory    BackendFactory
	persistent bool // needs a path on disk
}

var registry = struct {
	sync.RWMutex
	backends map[string]registration
}{backends: make(map[string]registration)}

// RegisterBackend makes a backend available under name. Persistent
// backends require Config.Path.
func RegisterBackend(name string, persistent bool, factory BackendFactory) {
	registry.Lock()
	defer registry.Unlock()
	registry.backends[name] = registration{factory: factory, persistent: persistent}
}

func lookupBackend(name string) (registration, bool) {
	registry.RLock()
	defer registry.RUnlock()
	reg, ok := registry.backends[name]
	return reg, ok
}

// CreateBackend creates a new, unopened backend instance for the given name and configuration.
func CreateBackend(name string, config *Config) (Backend, error) {
	reg, ok := lookupBackend(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, name)
	}
	return reg.factory(config)
}

// AvailableBackends returns the sorted names of registered backends.
func AvailableBackends() []string {
	registry.RLock()
	defer registry.RUnlock()

	names := make([]string, 0, len(registry.backends))
	for name := range registry.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsBackendAvailable checks if a backend with the given name is available.
func IsBackendAvailable(name string) bool {
	_, ok := lookupBackend(name)
	return ok
}

// IsPersistentBackend reports whether the named backend stores its data on disk.
func IsPersistentBackend(name string) bool {
	reg, ok := lookupBackend(name)
	return ok && reg.persistent
}

func init() {
	RegisterBackend("pebble", true, NewPebbleBackend)
	RegisterBackend("leveldb", true, NewLevelDBBackend)
	RegisterBackend("memory", false, NewMemoryBackendFromConfig)
}
