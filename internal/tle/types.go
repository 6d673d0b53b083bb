package tle

import "time"

// ElementSet is one satellite's two-line element set.
type ElementSet struct {
	NORADID int
	Name    string // empty for two-line records
	Epoch   time.Time
	Line1   string
	Line2   string
}

// EpochRange represents the minimum and maximum epoch times in a dataset.
type EpochRange struct {
	Min time.Time
	Max time.Time
}

// Dataset is a complete set of element sets from one source.
type Dataset struct {
	Source     string
	FetchedAt  time.Time
	EpochRange EpochRange
	Satellites []ElementSet
}

// NewDataset builds a Dataset and derives its epoch range.
func NewDataset(source string, fetchedAt time.Time, sats []ElementSet) *Dataset {
	ds := &Dataset{Source: source, FetchedAt: fetchedAt, Satellites: sats}
	for i, s := range sats {
		if i == 0 || s.Epoch.Before(ds.EpochRange.Min) {
			ds.EpochRange.Min = s.Epoch
		}
		if i == 0 || s.Epoch.After(ds.EpochRange.Max) {
			ds.EpochRange.Max = s.Epoch
		}
	}
	return ds
}
