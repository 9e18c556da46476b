// Package cache provides small in-process caches for read-mostly data.
package cache

// Cache defines a generic cache interface
type Cache[T any] interface {
	// Get retrieves a value from the cache
	Get(key string) (T, bool)

	// Set stores a value in the cache
	Set(key string, data T)

	// Delete removes a key from the cache
	Delete(key string)

	// Size returns the current number of items in the cache
	Size() int
}

// Nop is a Cache that stores nothing. It disables caching without nil checks.
type Nop[T any] struct{}

func (Nop[T]) Get(string) (T, bool) {
	var zero T
	return zero, false
}

func (Nop[T]) Set(string, T) {}
func (Nop[T]) Delete(string) {}
func (Nop[T]) Size() int { return 0 }
