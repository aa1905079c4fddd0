package ports

import "context"

// KVStore is the durable key-value store backing the session. Implementations
// return domain.ErrKeyNotFound for absent keys; Delete of an absent key is not
// an error.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
