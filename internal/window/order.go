package window

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bryanchriswhite/nicotine/internal/logger"
	"github.com/fsnotify/fsnotify"
)

// OrderFile holds the preferred cycle order: one title per line, blank lines
// and lines starting with # ignored. A missing file means no preference.
type OrderFile struct {
	path string

	mu     sync.RWMutex
	titles []string
}

// LoadOrderFile reads path; a missing file is not an error
func LoadOrderFile(path string) (*OrderFile, error) {
	o := &OrderFile{path: path}
	if err := o.Reload(); err != nil {
		return nil, err
	}
	return o, nil
}

// Path returns the watched file path
func (o *OrderFile) Path() string {
	return o.path
}

// Titles returns a copy of the configured order
func (o *OrderFile) Titles() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.titles...)
}

// Reload re-reads the file from disk
func (o *OrderFile) Reload() error {
	titles, err := readOrder(o.path)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.titles = titles
	o.mu.Unlock()
	return nil
}

func readOrder(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open order file: %w", err)
	}
	defer f.Close()

	var titles []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		titles = append(titles, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read order file: %w", err)
	}
	return titles, nil
}

// Watch reloads the file whenever it changes and calls onChange afterwards.
// It watches the parent directory so editors that replace the file by
// rename are still seen. Blocks until ctx is done.
func (o *OrderFile) Watch(ctx context.Context, onChange func()) error {
	log := logger.WithComponent("order-file")
	if o.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(o.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(o.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := o.Reload(); err != nil {
				log.Warn().Err(err).Msg("Failed to reload order file")
				continue
			}
			log.Info().Int("titles", len(o.Titles())).Msg("Order file reloaded")
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("Order file watcher error")
		}
	}
}
