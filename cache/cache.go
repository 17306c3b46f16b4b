package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"weblog/common"
	"weblog/content"
)

// Cache stores rendered responses on disk, one file per request URI.
type Cache struct {
	dir    string
	maxAge time.Duration

	mu         sync.Mutex
	generation uint64
}

func New(dir string, maxAge time.Duration) *Cache {
	return &Cache{dir: dir, maxAge: maxAge}
}

// generateHash generates an xxHash hash for the given string
func generateHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// Path returns the cache file of a request URI.
func (c *Cache) Path(uri string) string {
	return filepath.Join(c.dir, generateHash(uri)+".json")
}

func (c *Cache) Write(uri string, body []byte) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	return errors.Wrap(os.WriteFile(c.Path(uri), body, 0644), "write cache")
}

// Read returns the cached body of uri if present and younger than maxAge.
func (c *Cache) Read(uri string) ([]byte, bool) {
	path := c.Path(uri)

	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return body, true
}

// Generation counts the clears so far.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// WriteIfCurrent writes body only if no clear happened since generation gen
// was observed, so a response rendered before a change is never stored after it.
func (c *Cache) WriteIfCurrent(uri string, body []byte, gen uint64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return false, nil
	}
	return true, c.Write(uri, body)
}

// Clear removes every cached response.
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return errors.Wrap(os.RemoveAll(c.dir), "clear cache")
}

// ClearOnChange is a content change listener that drops every cached response.
func (c *Cache) ClearOnChange(change content.Change) {
	if err := c.Clear(); err != nil {
		common.Log.WithError(err).WithField("type", change.Type).Error("error clearing cache")
	}
}

// ClearOld removes cache files older than maxAge.
func (c *Cache) ClearOld() error {
	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		if time.Since(info.ModTime()) > c.maxAge {
			os.Remove(path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
