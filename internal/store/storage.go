// Package store provides named reactive state slices with optional durable
// persistence. Slices are mutually independent; composition across them
// happens in calling code, never inside the store.
package store

// Storage persists slice snapshots outside the process. Implementations must
// tolerate concurrent calls for distinct keys.
type Storage interface {
	// Load returns the payload for key, reporting false when absent.
	Load(key string) ([]byte, bool, error)
	// Save overwrites the payload for key.
	Save(key string, data []byte) error
	// Delete removes the payload for key; absent keys are not an error.
	Delete(key string) error
}
