package concurrency

import (
	"hash/fnv"
	"sort"
	"sync/atomic"
)

// ResultMap is a lock-free string-keyed map with a fixed bucket count. Each
// bucket is a singly-linked list grown by CAS on its head. Every Store stamps
// the entry with a global sequence number so readers can recover insertion
// order across buckets.
type ResultMap[V any] struct {
	buckets []atomic.Pointer[entryNode[V]]
	mask    uint64
	seq     atomic.Uint64
	size    atomic.Int64
}

type entryNode[V any] struct {
	key  string
	val  atomic.Pointer[stamped[V]]
	next atomic.Pointer[entryNode[V]]
}

type stamped[V any] struct {
	seq uint64
	v   V
}

// Entry is one key/value pair returned by Ordered.
type Entry[V any] struct {
	Key   string
	Value V
}

// NewResultMap creates a map with bucket count rounded up to a power of two.
func NewResultMap[V any](buckets uint64) *ResultMap[V] {
	if buckets < 2 {
		buckets = 2
	}
	n := uint64(1)
	for n < buckets {
		n <<= 1
	}
	return &ResultMap[V]{
		buckets: make([]atomic.Pointer[entryNode[V]], n),
		mask:    n - 1,
	}
}

func (m *ResultMap[V]) bucket(key string) *atomic.Pointer[entryNode[V]] {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return &m.buckets[h.Sum64()&m.mask]
}

// Load returns the value for key if present.
func (m *ResultMap[V]) Load(key string) (V, bool) {
	var zero V
	for n := m.bucket(key).Load(); n != nil; n = n.next.Load() {
		if n.key == key {
			return n.val.Load().v, true
		}
	}
	return zero, false
}

// Store sets the value for key, inserting if absent.
func (m *ResultMap[V]) Store(key string, value V) {
	box := &stamped[V]{seq: m.seq.Add(1), v: value}
	head := m.bucket(key)
	for {
		old := head.Load()
		for n := old; n != nil; n = n.next.Load() {
			if n.key == key {
				n.val.Store(box)
				return
			}
		}
		fresh := &entryNode[V]{key: key}
		fresh.val.Store(box)
		fresh.next.Store(old)
		if head.CompareAndSwap(old, fresh) {
			m.size.Add(1)
			return
		}
	}
}

// Len returns the number of distinct keys.
func (m *ResultMap[V]) Len() int { return int(m.size.Load()) }

// Ordered returns a snapshot of all entries sorted by their last Store.
func (m *ResultMap[V]) Ordered() []Entry[V] {
	type row struct {
		seq uint64
		e   Entry[V]
	}
	var rows []row
	for i := range m.buckets {
		for n := m.buckets[i].Load(); n != nil; n = n.next.Load() {
			b := n.val.Load()
			rows = append(rows, row{seq: b.seq, e: Entry[V]{Key: n.key, Value: b.v}})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]Entry[V], len(rows))
	for i, r := range rows {
		out[i] = r.e
	}
	return out
}
