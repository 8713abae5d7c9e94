package persister

import "context"

// Persister is the storage backend for per-user record collections. Every
// save is a full overwrite of the user's collection, never an append.
type Persister interface {
	Load(ctx context.Context, userId string) (*Collection, error)
	Save(ctx context.Context, userId string, records []Record) error
	Users(ctx context.Context) ([]string, error)
}
