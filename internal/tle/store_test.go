package tle

import (
	"errors"
	"testing"
	"time"
)

func TestStoreEmpty(t *testing.T) {
	s := NewStore()
	if s.Get() != nil {
		t.Error("new store has a dataset")
	}
	if _, err := s.Current(); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Current err = %v, want ErrNoDataset", err)
	}
	if _, err := s.Lookup(25544); !errors.Is(err, ErrNoDataset) {
		t.Errorf("Lookup err = %v, want ErrNoDataset", err)
	}
	if age := s.AgeSeconds(); age != -1 {
		t.Errorf("AgeSeconds = %v, want -1", age)
	}
}

func TestStoreLookup(t *testing.T) {
	s := NewStore()
	s.Set(NewDataset("test", time.Now().Add(-time.Minute), []ElementSet{
		{NORADID: 25544, Name: issName, Line1: issLine1, Line2: issLine2},
		{NORADID: 33591, Name: noaaName, Line1: noaaLine1, Line2: noaaLine2},
	}))

	es, err := s.Lookup(33591)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if es.Name != noaaName {
		t.Errorf("name = %q, want %q", es.Name, noaaName)
	}

	if _, err := s.Lookup(1); !errors.Is(err, ErrUnknownSatellite) {
		t.Errorf("err = %v, want ErrUnknownSatellite", err)
	}

	if age := s.AgeSeconds(); age < 59 || age > 120 {
		t.Errorf("AgeSeconds = %v, want ~60", age)
	}
}

func TestNewDatasetEmpty(t *testing.T) {
	ds := NewDataset("empty", time.Now(), nil)
	if !ds.EpochRange.Min.IsZero() || !ds.EpochRange.Max.IsZero() {
		t.Errorf("epoch range of empty dataset = %+v, want zero", ds.EpochRange)
	}
}
