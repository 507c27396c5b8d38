// Package indexfile mirrors the daemon's current index to a small file so
// observers such as an overlay can follow the selection without talking to
// the control socket.
//
// The record is two lines of plain text:
//
//	<index>        0-based selection, -1 when nothing is selected
//	<generation>   increases with every committed transition
//
// Readers that only care about the index read the first line.
package indexfile

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/bryanchriswhite/nicotine/internal/logger"
)

// Record is one published state
type Record struct {
	Index      int    `json:"index"`
	Generation uint64 `json:"generation"`
}

// Publisher writes records atomically (temp file + rename)
type Publisher struct {
	path string

	mu      sync.Mutex
	last    uint64
	written bool
}

// NewPublisher creates a publisher for path and makes sure its directory exists
func NewPublisher(path string) (*Publisher, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	return &Publisher{path: path}, nil
}

// Path returns the record location
func (p *Publisher) Path() string {
	return p.path
}

// Publish writes index with its generation. A generation older than the
// last one written is dropped, so late publishes from a slower goroutine
// cannot roll the mirror back.
func (p *Publisher) Publish(index int, generation uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.written && generation < p.last {
		logger.WithComponent("indexfile").Debug().
			Uint64("generation", generation).
			Uint64("last", p.last).
			Msg("Skipping stale index publish")
		return nil
	}

	if err := writeAtomic(p.path, Format(Record{Index: index, Generation: generation})); err != nil {
		return err
	}
	p.last = generation
	p.written = true
	return nil
}

// Remove deletes the record, used on daemon shutdown
func (p *Publisher) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Format renders a record
func Format(r Record) []byte {
	return []byte(fmt.Sprintf("%d\n%d\n", r.Index, r.Generation))
}

// Parse reads a record; a missing generation line parses as generation 0
func Parse(data []byte) (Record, error) {
	var r Record
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return r, fmt.Errorf("empty index record")
	}
	idx, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return r, fmt.Errorf("invalid index %q: %w", scanner.Text(), err)
	}
	if idx < -1 {
		return r, fmt.Errorf("invalid index %d", idx)
	}
	r.Index = idx

	if scanner.Scan() {
		gen, err := strconv.ParseUint(strings.TrimSpace(scanner.Text()), 10, 64)
		if err != nil {
			return r, fmt.Errorf("invalid generation %q: %w", scanner.Text(), err)
		}
		r.Generation = gen
	}
	return r, nil
}

// Read loads the record at path
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	return Parse(data)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp index file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return cleanup(fmt.Errorf("failed to write temp index file: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(fmt.Errorf("failed to sync temp index file: %w", err))
	}
	if err := tmp.Chmod(0644); err != nil {
		return cleanup(fmt.Errorf("failed to chmod temp index file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp index file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace index file: %w", err)
	}
	return nil
}
