package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"healthcast/internal/table"
)

// tableCache keeps parsed artifact tables keyed by path, modification time
// and size, so a rewritten file is reloaded on the next request.
type tableCache struct {
	entries *lru.Cache[string, *table.Frame]
}

func newTableCache(size int) (*tableCache, error) {
	if size <= 0 {
		size = 16
	}
	entries, err := lru.New[string, *table.Frame](size)
	if err != nil {
		return nil, fmt.Errorf("create table cache: %w", err)
	}
	return &tableCache{entries: entries}, nil
}

func cacheKey(path string, info os.FileInfo) string {
	return fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
}

// Load returns the parsed table at path. The returned frame is shared and
// must not be modified.
func (c *tableCache) Load(path string) (*table.Frame, error) {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	key := cacheKey(path, info)
	if f, ok := c.entries.Get(key); ok {
		return f, nil
	}

	f, err := table.Read(path)
	if err != nil {
		return nil, err
	}
	c.Purge(path)
	c.entries.Add(key, f)
	return f, nil
}

// Purge drops every cached version of path.
func (c *tableCache) Purge(path string) int {
	prefix := filepath.Clean(path) + "|"
	n := 0
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.entries.Remove(key)
			n++
		}
	}
	return n
}

func (c *tableCache) Len() int { return c.entries.Len() }
