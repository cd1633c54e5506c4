package serverconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// FileRepository keeps the snapshot in a single JSON document keyed by guild ID.
type FileRepository struct {
	path string
	mu   sync.Mutex
}

func NewFileRepository(path string) (*FileRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	return &FileRepository{path: path}, nil
}

// LoadAll returns every entry that decodes. Entries that fail are reported in
// the error alongside the ones that loaded.
func (r *FileRepository) LoadAll(defaults ServerConfig) (map[string]ServerConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]ServerConfig)
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return out, fmt.Errorf("read configs: %w", err)
	}
	if len(data) == 0 {
		return out, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return out, fmt.Errorf("decode configs: %w", err)
	}
	// a bad entry is skipped so one guild cannot take the others down
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var errs error
	for _, id := range ids {
		c := defaults
		if err := json.Unmarshal(raw[id], &c); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("decode config for guild %s: %w", id, err))
			continue
		}
		out[id] = c
	}
	if errs != nil {
		return out, errs
	}
	return out, nil
}

func (r *FileRepository) SaveAll(configs map[string]ServerConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open configs: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(configs); err != nil {
		return fmt.Errorf("encode configs: %w", err)
	}
	return nil
}
