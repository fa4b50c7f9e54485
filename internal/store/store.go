// Package store keeps uploaded images addressable by opaque IDs until their
// owner releases them.
package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Blob is one stored image.
type Blob struct {
	ID          string
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// Images is an in-memory image store. Entries expire after ttl if never
// released, which bounds leaks from abandoned sessions.
type Images struct {
	cache *cache.Cache
}

func NewImages(ttl time.Duration) *Images {
	return &Images{cache: cache.New(ttl, ttl*2)}
}

// Put stores data and returns its blob with a fresh ID.
func (s *Images) Put(name, contentType string, data []byte) Blob {
	b := Blob{
		ID:          uuid.NewString(),
		Name:        name,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now().UTC(),
	}
	s.cache.Set(b.ID, b, cache.DefaultExpiration)
	return b
}

func (s *Images) Get(id string) (Blob, bool) {
	v, ok := s.cache.Get(id)
	if !ok {
		return Blob{}, false
	}
	return v.(Blob), true
}

// Touch restarts the expiry of id. It reports false when id is gone.
func (s *Images) Touch(id string) bool {
	v, ok := s.cache.Get(id)
	if !ok {
		return false
	}
	return s.cache.Replace(id, v, cache.DefaultExpiration) == nil
}

// Release drops id. Releasing an unknown ID is a no-op.
func (s *Images) Release(id string) {
	s.cache.Delete(id)
}

// Len returns the number of held images, expired ones included until the
// next janitor sweep.
func (s *Images) Len() int {
	return s.cache.ItemCount()
}
