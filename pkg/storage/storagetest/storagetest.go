// Package storagetest provides an in-memory storage.System for tests.
package storagetest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/JaimeStill/labelhub/pkg/lifecycle"
	"github.com/JaimeStill/labelhub/pkg/storage"
)

// Store is a concurrency-safe in-memory storage.System that counts downloads.
type Store struct {
	mu        sync.Mutex
	blobs     map[string][]byte
	types     map[string]string
	downloads int

	// UploadErr, when set, is returned by every Upload.
	UploadErr error
}

var _ storage.System = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{
		blobs: make(map[string][]byte),
		types: make(map[string]string),
	}
}

// Put seeds a blob.
func (s *Store) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
}

// Downloads returns how many successful downloads were served.
func (s *Store) Downloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downloads
}

// Keys returns the number of stored blobs.
func (s *Store) Keys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}

func (s *Store) Start(*lifecycle.Coordinator) error { return nil }

func (s *Store) Upload(_ context.Context, key string, r io.Reader, contentType string) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if s.UploadErr != nil {
		return s.UploadErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = data
	s.types[key] = contentType
	return nil
}

func (s *Store) Download(_ context.Context, key string) (*storage.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	s.downloads++
	return &storage.Blob{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentType:   s.types[key],
		ContentLength: int64(len(data)),
	}, nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.blobs, key)
	delete(s.types, key)
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blobs[key]
	return ok, nil
}
