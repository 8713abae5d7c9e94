package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maxfong/my-mem-mcp/memory_store/providers/persister"
)

const suffix = ".json"

type filePersister struct {
	options persister.Options
	dir     string
}

// NewPersister creates a persister that writes one JSON collection file per
// user under the configured location.
func NewPersister(opts ...persister.Option) (persister.Persister, error) {
	options := persister.NewOptions(opts...)

	dir := options.Location
	if len(dir) == 0 {
		dir = "data"
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	p := &filePersister{
		options: options,
		dir:     dir,
	}

	return p, nil
}

func (p *filePersister) Load(ctx context.Context, userId string) (*persister.Collection, error) {
	data, err := os.ReadFile(p.path(userId))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read collection for %q: %w", userId, err)
	}

	var collection persister.Collection
	if err := json.Unmarshal(data, &collection); err != nil {
		return nil, fmt.Errorf("decode collection for %q: %w", userId, err)
	}

	return &collection, nil
}

func (p *filePersister) Save(ctx context.Context, userId string, records []persister.Record) error {
	collection := persister.Collection{
		Version:   persister.SchemaVersion,
		UpdatedAt: time.Now().UTC(),
		Memories:  records,
	}

	data, err := json.MarshalIndent(collection, "", "  ")
	if err != nil {
		return fmt.Errorf("encode collection for %q: %w", userId, err)
	}

	// Write to a temp file in the same directory, then rename, so a
	// concurrent reader never observes a half-written collection.
	tmp, err := os.CreateTemp(p.dir, Sanitize(userId)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %q: %w", userId, err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write collection for %q: %w", userId, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close collection for %q: %w", userId, err)
	}

	if err := os.Rename(tmp.Name(), p.path(userId)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace collection for %q: %w", userId, err)
	}

	return nil
}

func (p *filePersister) Users(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("list data dir: %w", err)
	}

	var users []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, suffix) {
			continue
		}
		users = append(users, strings.TrimSuffix(name, suffix))
	}

	return users, nil
}

func (p *filePersister) path(userId string) string {
	return filepath.Join(p.dir, Sanitize(userId)+suffix)
}

// Sanitize maps every rune outside [A-Za-z0-9_-] to '_' so a hostile user id
// cannot escape the data directory or inject path separators.
func Sanitize(userId string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, userId)
}
