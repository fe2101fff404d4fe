// Package jsonfile provides a file-backed store for local runs and tests. It
// implements the same sink, cursor, vendor-tag and lease interfaces as the
// PostgreSQL store over three JSON files in a data directory.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rushikc/pennywise-sync/pkg/api"
)

const (
	expensesFile  = "expenses.json"
	configFile    = "config.json"
	vendorTagFile = "vendorTags.json"
	lockFile      = "sync.lock"
)

// Store keeps everything in memory and rewrites the backing file on each
// mutation. JSON has no append, so the whole array is written every time.
type Store struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	expenses map[string]*api.Expense
	config   map[string]string
	tags     []api.VendorTag
}

// New opens (or initializes) a store in the given directory.
func New(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	s := &Store{
		dir:      dir,
		logger:   logger,
		expenses: make(map[string]*api.Expense),
		config:   make(map[string]string),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	logger.Info("jsonfile store opened", "dir", dir, "expenses", len(s.expenses))
	return s, nil
}

func (s *Store) load() error {
	var expenses []*api.Expense
	if err := readJSON(filepath.Join(s.dir, expensesFile), &expenses); err != nil {
		return err
	}
	for _, e := range expenses {
		s.expenses[e.MailID] = e
	}

	if err := readJSON(filepath.Join(s.dir, configFile), &s.config); err != nil {
		return err
	}
	if s.config == nil {
		s.config = make(map[string]string)
	}

	return readJSON(filepath.Join(s.dir, vendorTagFile), &s.tags)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Put stores an expense keyed by MailID; a repeated id overwrites.
func (s *Store) Put(_ context.Context, expense *api.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *expense
	s.expenses[expense.MailID] = &copied
	return s.flushExpenses()
}

func (s *Store) flushExpenses() error {
	all := make([]*api.Expense, 0, len(s.expenses))
	for _, e := range s.expenses {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Date < all[j].Date })
	return writeJSON(filepath.Join(s.dir, expensesFile), all)
}

// ListSince returns expenses modified at or after the given epoch-millis
// timestamp, oldest first.
func (s *Store) ListSince(_ context.Context, sinceMillis int64) ([]*api.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*api.Expense
	for _, e := range s.expenses {
		if e.ModifiedDate >= sinceMillis {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModifiedDate < out[j].ModifiedDate })
	return out, nil
}

// Get reads a config value; "" when never set.
func (s *Store) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config[key], nil
}

// Set writes a config value.
func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.config[key] = value
	return writeJSON(filepath.Join(s.dir, configFile), s.config)
}

// GetAll returns the vendor-tag mappings.
func (s *Store) GetAll(_ context.Context) ([]api.VendorTag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]api.VendorTag, len(s.tags))
	copy(out, s.tags)
	return out, nil
}

// SetTag adds or replaces one vendor-tag mapping.
func (s *Store) SetTag(_ context.Context, tag api.VendorTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i := range s.tags {
		if s.tags[i].Vendor == tag.Vendor {
			s.tags[i] = tag
			replaced = true
			break
		}
	}
	if !replaced {
		s.tags = append(s.tags, tag)
	}
	return writeJSON(filepath.Join(s.dir, vendorTagFile), s.tags)
}

// TryAcquire takes an exclusive lock file. A leftover file from a crashed run
// has to be removed by hand; the lock names the holder pid to help with that.
func (s *Store) TryAcquire(_ context.Context, scope string) (api.Lease, error) {
	path := filepath.Join(s.dir, scope+"-"+lockFile)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil, api.ErrLocked
		}
		return nil, fmt.Errorf("creating lock file: %w", err)
	}

	fmt.Fprintf(f, "%d\n", os.Getpid())
	if err := f.Close(); err != nil {
		// No lease was handed out, so the file must not linger and block
		// every later run.
		os.Remove(path)
		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return &fileLease{path: path}, nil
}

type fileLease struct {
	path string
}

func (l *fileLease) Release(context.Context) error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing lock file: %w", err)
	}
	return nil
}
