package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

// Checkpoint is the persisted filename -> content hash record.
type Checkpoint struct {
	mu     sync.Mutex
	path   string
	hashes map[string]string
}

// LoadCheckpoint reads the record at path. A missing file starts empty, and so
// does an unreadable one, which is logged and rewritten on the next Save.
func LoadCheckpoint(path string) *Checkpoint {
	c := &Checkpoint{path: path, hashes: make(map[string]string)}
	if path == "" {
		return c
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Error().Err(err).Str("path", path).Msg("Failed to read checkpoint")
		}
		return c
	}
	if err := json.Unmarshal(data, &c.hashes); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Corrupt checkpoint, starting empty")
		c.hashes = make(map[string]string)
	}
	if c.hashes == nil {
		c.hashes = make(map[string]string)
	}
	return c
}

func (c *Checkpoint) Get(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.hashes[name]
	return h, ok
}

func (c *Checkpoint) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.hashes)
}

// Record sets the hash for name and rewrites the whole file.
func (c *Checkpoint) Record(name, hash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[name] = hash
	return c.saveLocked()
}

func (c *Checkpoint) saveLocked() error {
	if c.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(c.hashes, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}
