package aggregate

import (
	"iter"

	"home_energy/internal/model"
	"home_energy/internal/store"
)

// Iterator walks the hourly store once in ascending order, emitting one
// IntervalEnergy per distinct bucket key. It cannot be rewound; ask the
// aggregator for a new one to rescan.
type Iterator struct {
	agg  *Aggregator
	key  BucketKeyFunc
	next int
}

// Intervals returns an iterator for the given granularity.
func (a *Aggregator) Intervals(g model.Granularity) (*Iterator, error) {
	key, err := BucketKey(g, a.loc)
	if err != nil {
		return nil, err
	}
	return a.iterator(key), nil
}

// IntervalsBy returns an iterator using a caller-supplied bucket key.
func (a *Aggregator) IntervalsBy(key BucketKeyFunc) *Iterator {
	return a.iterator(key)
}

func (a *Aggregator) Hours() *Iterator  { return a.iterator(utcHour) }
func (a *Aggregator) Days() *Iterator   { return a.mustIterator(model.GranularityDay) }
func (a *Aggregator) Months() *Iterator { return a.mustIterator(model.GranularityMonth) }
func (a *Aggregator) Years() *Iterator  { return a.mustIterator(model.GranularityYear) }

func (a *Aggregator) iterator(key BucketKeyFunc) *Iterator {
	return &Iterator{agg: a, key: key}
}

func (a *Aggregator) mustIterator(g model.Granularity) *Iterator {
	it, err := a.Intervals(g)
	if err != nil {
		panic(err)
	}
	return it
}

// Next returns the next interval, or false once the store is exhausted.
func (it *Iterator) Next() (model.IntervalEnergy, bool) {
	hourly := it.agg.hourly
	n := hourly.Len()
	if it.next >= n {
		return model.IntervalEnergy{}, false
	}

	first := hourly.At(it.next)
	it.next++
	start := it.key(first.Hour)

	out := model.IntervalEnergy{IntervalStart: start}
	it.fold(&out, first)

	for it.next < n {
		if !it.key(hourly.HourAt(it.next)).Equal(start) {
			break
		}
		it.fold(&out, hourly.At(it.next))
		it.next++
	}

	out.Consumed = out.Produced + out.NetUsed
	return out, true
}

// fold adds one hour to the running totals. Hours with unresolved conflicts
// contribute nothing.
func (it *Iterator) fold(out *model.IntervalEnergy, b store.Bucket) {
	s, ok := it.agg.Summarize(b)
	if !ok {
		return
	}
	out.Produced += s.Produced
	out.NetUsed += s.NetUsed
}

// All drains the iterator as a range-over-func sequence.
func (it *Iterator) All() iter.Seq[model.IntervalEnergy] {
	return func(yield func(model.IntervalEnergy) bool) {
		for {
			v, ok := it.Next()
			if !ok || !yield(v) {
				return
			}
		}
	}
}
