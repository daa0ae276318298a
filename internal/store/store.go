package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"home_energy/internal/model"
)

var ErrNotHourAligned = errors.New("timestamp is not a UTC hour boundary")

// Entry is one source's accumulated energy for an hour.
type Entry struct {
	Source model.SourceID
	Energy model.WattHours
}

// Bucket holds every source's contribution to a single hour. Entries keep
// first-insertion order and hold at most one entry per source.
type Bucket struct {
	Hour       time.Time
	Production []Entry
	NetUsage   []Entry
}

// Entries returns the bucket's entries for one category.
func (b *Bucket) Entries(c model.Category) []Entry {
	if c == model.Production {
		return b.Production
	}
	return b.NetUsage
}

func (b *Bucket) entries(c model.Category) *[]Entry {
	if c == model.Production {
		return &b.Production
	}
	return &b.NetUsage
}

func (b *Bucket) clone() Bucket {
	return Bucket{
		Hour:       b.Hour,
		Production: append([]Entry(nil), b.Production...),
		NetUsage:   append([]Entry(nil), b.NetUsage...),
	}
}

// Store is an ordered mapping from UTC hour to Bucket.
//
// Concurrent readers are safe. Accumulate must not overlap with readers that
// walk the store by index (see Len and At).
type Store struct {
	mu      sync.RWMutex
	buckets map[int64]*Bucket // keyed by unix seconds of the hour
	hours   []int64           // sorted ascending
}

func New() *Store {
	return &Store{
		buckets: make(map[int64]*Bucket),
	}
}

// Accumulate adds energy for (hour, category, source). It reports whether an
// entry for that source already existed and was added to.
func (s *Store) Accumulate(hour time.Time, c model.Category, src model.SourceID, wh model.WattHours) (bool, error) {
	if !model.IsHourKey(hour) {
		return false, fmt.Errorf("%w: %s", ErrNotHourAligned, hour.Format(time.RFC3339Nano))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := hour.Unix()
	b, ok := s.buckets[key]
	if !ok {
		b = &Bucket{Hour: hour}
		s.buckets[key] = b
		s.insertHour(key)
	}

	entries := b.entries(c)
	for i := range *entries {
		if (*entries)[i].Source == src {
			(*entries)[i].Energy += wh
			return true, nil
		}
	}
	*entries = append(*entries, Entry{Source: src, Energy: wh})
	return false, nil
}

// insertHour keeps hours sorted. Input is usually in order, so the common
// case is an append.
func (s *Store) insertHour(key int64) {
	n := len(s.hours)
	if n == 0 || s.hours[n-1] < key {
		s.hours = append(s.hours, key)
		return
	}
	idx := sort.Search(n, func(i int) bool { return s.hours[i] >= key })
	s.hours = append(s.hours, 0)
	copy(s.hours[idx+1:], s.hours[idx:])
	s.hours[idx] = key
}

// Len returns the number of hours that have at least one entry.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.hours)
}

// At returns a copy of the i-th bucket in ascending hour order.
func (s *Store) At(i int) Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buckets[s.hours[i]].clone()
}

// HourAt returns the i-th hour without copying its bucket.
func (s *Store) HourAt(i int) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buckets[s.hours[i]].Hour
}

// Get returns a copy of the bucket for hour, if present.
func (s *Store) Get(hour time.Time) (Bucket, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.buckets[model.HourKey(hour).Unix()]
	if !ok {
		return Bucket{}, false
	}
	return b.clone(), true
}

// TimeRange returns the first and last hour present.
func (s *Store) TimeRange() (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.hours) == 0 {
		return model.TimeRange{}, false
	}
	return model.TimeRange{
		Start: s.buckets[s.hours[0]].Hour,
		End:   s.buckets[s.hours[len(s.hours)-1]].Hour,
	}, true
}

// BucketsInRange returns buckets with hours between start (inclusive) and
// end (exclusive).
func (s *Store) BucketsInRange(start, end time.Time) []Bucket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	startKey, endKey := start.Unix(), end.Unix()
	startIdx := sort.Search(len(s.hours), func(i int) bool {
		return s.hours[i] >= startKey
	})
	endIdx := sort.Search(len(s.hours), func(i int) bool {
		return s.hours[i] >= endKey
	})
	if startIdx >= endIdx {
		return nil
	}

	result := make([]Bucket, 0, endIdx-startIdx)
	for _, key := range s.hours[startIdx:endIdx] {
		result = append(result, s.buckets[key].clone())
	}
	return result
}
