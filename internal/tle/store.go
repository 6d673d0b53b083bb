package tle

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zojak-ves/satview/internal/metrics"
)

var (
	// ErrNoDataset is returned when no element sets have been loaded yet.
	ErrNoDataset = errors.New("no TLE dataset loaded")
	// ErrUnknownSatellite is returned for a NORAD ID absent from the dataset.
	ErrUnknownSatellite = errors.New("satellite not in dataset")
)

// Store provides thread-safe access to the current dataset.
type Store struct {
	dataset atomic.Pointer[Dataset]
	mu      sync.Mutex // serializes fetch operations
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the current dataset, or nil if none has been loaded.
func (s *Store) Get() *Dataset {
	return s.dataset.Load()
}

// Current is Get, but reports ErrNoDataset instead of returning nil.
func (s *Store) Current() (*Dataset, error) {
	ds := s.dataset.Load()
	if ds == nil {
		return nil, ErrNoDataset
	}
	return ds, nil
}

// Set atomically replaces the current dataset.
func (s *Store) Set(ds *Dataset) {
	s.dataset.Store(ds)
	if ds != nil {
		metrics.SetDatasetSize(len(ds.Satellites))
	}
}

// Lookup finds a satellite's element set in the current dataset.
func (s *Store) Lookup(noradID int) (ElementSet, error) {
	ds, err := s.Current()
	if err != nil {
		return ElementSet{}, err
	}
	for _, es := range ds.Satellites {
		if es.NORADID == noradID {
			return es, nil
		}
	}
	return ElementSet{}, ErrUnknownSatellite
}

// AgeSeconds returns the age of the current dataset in seconds.
// Returns -1 if no dataset is loaded.
func (s *Store) AgeSeconds() float64 {
	ds := s.dataset.Load()
	if ds == nil {
		return -1
	}
	return time.Since(ds.FetchedAt).Seconds()
}

// Lock acquires the fetch mutex for serializing fetch operations.
func (s *Store) Lock() {
	s.mu.Lock()
}

// Unlock releases the fetch mutex.
func (s *Store) Unlock() {
	s.mu.Unlock()
}
