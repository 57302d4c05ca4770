package valkey

import "github.com/redis/rueidis"

// NewStoreForTest wraps a caller-supplied rueidis client, usually a mock.
func NewStoreForTest(c rueidis.Client) *Store {
	return &Store{client: c}
}
