package evidence

import (
	"context"
	"fmt"
	"slices"

	"github.com/puzpuzpuz/xsync/v3"
)

type InMemStore struct {
	objects *xsync.MapOf[string, []byte]
}

func NewInMemStore() *InMemStore {
	return &InMemStore{objects: xsync.NewMapOf[string, []byte]()}
}

func (s *InMemStore) Upload(ctx context.Context, content []byte, key string, mediaType string) error {
	s.objects.Store(key, slices.Clone(content))
	return nil
}

func (s *InMemStore) Download(ctx context.Context, key string) ([]byte, error) {
	content, ok := s.objects.Load(key)
	if !ok {
		return nil, fmt.Errorf("object %s does not exist", key)
	}
	return slices.Clone(content), nil
}

func (s *InMemStore) Keys() []string {
	var keys []string
	s.objects.Range(func(key string, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	slices.Sort(keys)
	return keys
}
