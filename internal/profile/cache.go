package profile

import (
	"os"
	"path/filepath"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"gattscope.dev/internal/logging"
)

// Cache is a file-backed map of device address to Profile. One JSON
// file holds every known peripheral; loads and stores re-read it, so
// concurrent gattscope instances see each other's writes.
type Cache struct {
	path string
	log  *logrus.Entry
	mu   sync.RWMutex
}

// NewCache creates a cache stored at path. The file is created on the
// first Store.
func NewCache(path string) *Cache {
	return &Cache{
		path: path,
		log:  logging.Component("cache"),
	}
}

// Store saves a profile under its address. With replace false an
// existing entry is an error; the TUI always replaces.
func (c *Cache) Store(address string, p Profile, replace bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.loadAll()
	if _, ok := all[address]; ok && !replace {
		return errors.Errorf("cache already holds a profile for %s", address)
	}
	all[address] = p

	out, err := jsoniter.Marshal(all)
	if err != nil {
		return errors.Wrap(err, "encoding profile cache")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return errors.Wrap(err, "creating cache directory")
	}
	if err := os.WriteFile(c.path, out, 0o644); err != nil {
		return errors.Wrap(err, "writing profile cache")
	}
	return nil
}

// Load returns the cached profile for address. A missing file, a
// missing entry, and a corrupt file all report false.
func (c *Cache) Load(address string) (Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.loadAll()[address]
	return p, ok
}

// Clear removes the cache file.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := os.Remove(c.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing profile cache")
	}
	return nil
}

// loadAll reads the whole cache file. A corrupt file is logged and
// treated as empty; the next Store rewrites it.
func (c *Cache) loadAll() map[string]Profile {
	in, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return map[string]Profile{}
	}
	if err != nil {
		c.log.WithError(err).Warn("reading profile cache")
		return map[string]Profile{}
	}

	var all map[string]Profile
	if err := jsoniter.Unmarshal(in, &all); err != nil {
		c.log.WithError(err).Warn("profile cache is corrupt, starting fresh")
		return map[string]Profile{}
	}
	if all == nil {
		all = map[string]Profile{}
	}
	return all
}
