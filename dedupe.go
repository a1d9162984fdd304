package lake

// KeyStore holds one record per key while a Deduper groups its input.
// Implementations must remember the order in which keys were first added and
// visit them in that order from Each.
type KeyStore[T any] interface {
	// Get returns the record stored for key and whether there was one.
	Get(key string) (T, bool, error)
	// Put stores rec for key, replacing any previous record but keeping the
	// key's original position.
	Put(key string, rec T) error
	Each(fn func(key string, rec T) error) error
	Len() int
	Close() error
}

// MemoryKeyStore is a KeyStore backed by a map. Its memory use is
// proportional to the number of distinct keys.
type MemoryKeyStore[T any] struct {
	index map[string]int
	keys  []string
	recs  []T
}

// NewMemoryKeyStore gets an empty MemoryKeyStore.
func NewMemoryKeyStore[T any]() *MemoryKeyStore[T] {
	return &MemoryKeyStore[T]{
		index: make(map[string]int),
	}
}

// Get implements KeyStore.
func (m *MemoryKeyStore[T]) Get(key string) (rec T, ok bool, err error) {
	i, ok := m.index[key]
	if !ok {
		return rec, false, nil
	}
	return m.recs[i], true, nil
}

// Put implements KeyStore.
func (m *MemoryKeyStore[T]) Put(key string, rec T) error {
	if i, ok := m.index[key]; ok {
		m.recs[i] = rec
		return nil
	}
	m.index[key] = len(m.keys)
	m.keys = append(m.keys, key)
	m.recs = append(m.recs, rec)
	return nil
}

// Each implements KeyStore.
func (m *MemoryKeyStore[T]) Each(fn func(key string, rec T) error) error {
	for i, key := range m.keys {
		if err := fn(key, m.recs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Len implements KeyStore.
func (m *MemoryKeyStore[T]) Len() int { return len(m.keys) }

// Close implements KeyStore. It releases the stored records.
func (m *MemoryKeyStore[T]) Close() error {
	m.index, m.keys, m.recs = nil, nil, nil
	return nil
}

// Deduper keeps at most one record per key. Which record survives among
// duplicates is decided by Prefer: the first record seen for a key is kept
// unless Prefer(existing, candidate) returns true, in which case the
// candidate replaces it. With a nil Prefer the first record always wins.
type Deduper[T any] struct {
	Prefer func(existing, candidate T) bool

	key   func(T) string
	store KeyStore[T]
	added int64
}

// NewDeduper gets a Deduper which groups records by key in store.
func NewDeduper[T any](store KeyStore[T], key func(T) string) *Deduper[T] {
	return &Deduper[T]{
		key:   key,
		store: store,
	}
}

// Add offers rec to the Deduper.
func (d *Deduper[T]) Add(rec T) error {
	d.added++
	k := d.key(rec)
	existing, ok, err := d.store.Get(k)
	if err != nil {
		return err
	}
	if ok && (d.Prefer == nil || !d.Prefer(existing, rec)) {
		return nil
	}
	return d.store.Put(k, rec)
}

// Each calls fn for each surviving record, in order of the first appearance
// of its key.
func (d *Deduper[T]) Each(fn func(T) error) error {
	return d.store.Each(func(_ string, rec T) error {
		return fn(rec)
	})
}

// Len returns the number of distinct keys seen.
func (d *Deduper[T]) Len() int { return d.store.Len() }

// Duplicates returns how many added records were duplicates of an earlier
// key.
func (d *Deduper[T]) Duplicates() int64 { return d.added - int64(d.store.Len()) }

// Close closes the underlying KeyStore.
func (d *Deduper[T]) Close() error { return d.store.Close() }

// Dedupe returns one record of records per distinct key, keeping the first
// one seen, in order of first appearance.
func Dedupe[T any](records []T, key func(T) string) []T {
	d := NewDeduper[T](NewMemoryKeyStore[T](), key)
	for _, r := range records {
		_ = d.Add(r) // a MemoryKeyStore never returns errors
	}
	out := make([]T, 0, d.Len())
	_ = d.Each(func(r T) error {
		out = append(out, r)
		return nil
	})
	return out
}
