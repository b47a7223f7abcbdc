package device

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/trackrelay/trackrelay/agent/internal/config"
)

// FileIdentity is the device id source. Safe for concurrent use.
type FileIdentity struct {
	path string

	mu     sync.RWMutex
	id     string
	pinned bool
}

// NewFileIdentity resolves the device id from cfg, generating and persisting
// one if needed.
func NewFileIdentity(cfg config.DeviceConfig) (*FileIdentity, error) {
	fi := &FileIdentity{path: cfg.IDFile}
	if id := strings.TrimSpace(cfg.ID); id != "" {
		fi.id, fi.pinned = id, true
		return fi, nil
	}

	if fi.path != "" {
		id, err := readID(fi.path)
		switch {
		case err == nil && id != "":
			fi.id = id
			return fi, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("device: read id file: %w", err)
		}
	}

	fi.id = uuid.NewString()
	if fi.path == "" {
		slog.Warn("device: no id or id_file configured, using an ephemeral id", "device_id", fi.id)
		return fi, nil
	}
	if err := writeID(fi.path, fi.id); err != nil {
		return nil, err
	}
	slog.Info("device: generated device id", "device_id", fi.id, "path", fi.path)
	return fi, nil
}

// DeviceID returns the current id.
func (fi *FileIdentity) DeviceID() string {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	return fi.id
}

// Set pins id, or unpins it when id is empty (the current value is kept
// until id_file changes).
func (fi *FileIdentity) Set(id string) {
	id = strings.TrimSpace(id)
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if id == "" {
		fi.pinned = false
		return
	}
	if id != fi.id {
		slog.Info("device: id changed", "from", fi.id, "to", id)
	}
	fi.id, fi.pinned = id, true
}

// Watch follows id_file until ctx is cancelled. Returns immediately when no
// id_file is configured.
func (fi *FileIdentity) Watch(ctx context.Context) error {
	if fi.path == "" {
		return nil
	}
	abs, err := filepath.Abs(fi.path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			fi.reload(abs)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			slog.Error("device: id file watcher error", "err", err)
		}
	}
}

func (fi *FileIdentity) reload(path string) {
	id, err := readID(path)
	if err != nil || id == "" {
		// Editors truncate before writing; wait for the next event.
		return
	}
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if fi.pinned || id == fi.id {
		return
	}
	slog.Info("device: id reloaded from file", "from", fi.id, "to", id)
	fi.id = id
}

func readID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(string(data), "\n")
	return strings.TrimSpace(line), nil
}

func writeID(path, id string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("device: create id dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return fmt.Errorf("device: write id file: %w", err)
	}
	return nil
}
