// Package memblob keeps the media objects in memory. It backs the tests & the deployments without a bucket.
package memblob

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"
	"sync"

	"github.com/pkg/errors"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

type object struct {
	contentType string
	data        []byte
}

type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

var _ core.BlobStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{objects: make(map[string]object)}
}

func (s *Store) Put(_ context.Context, key, contentType string, _ int64, body io.Reader) error {
	data, err := ioutil.ReadAll(body)
	if err != nil {
		return errors.Wrapf(err, "reading %s", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = object{contentType: contentType, data: data}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (core.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	if !ok {
		return core.Blob{}, core.ErrBlobNotFound
	}
	return core.Blob{
		Key:         key,
		ContentType: obj.contentType,
		Size:        int64(len(obj.data)),
		Body:        ioutil.NopCloser(bytes.NewReader(obj.data)),
	}, nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.objects, k)
	}
	return nil
}

// Keys returns the stored keys.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys
}
