package state

import "sync"

// Field holds one AppState value. Writes replace the value wholesale and
// notify subscribers; a slow subscriber only ever sees the latest value.
type Field[T any] struct {
	mu       sync.RWMutex
	value    T
	subs     map[int]chan T
	nextID   int
	onChange func()
}

func newField[T any](initial T, onChange func()) *Field[T] {
	return &Field[T]{
		value:    initial,
		subs:     make(map[int]chan T),
		onChange: onChange,
	}
}

// Get returns the current value
func (f *Field[T]) Get() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.value
}

// Set replaces the value and notifies subscribers
func (f *Field[T]) Set(v T) {
	f.mu.Lock()
	f.value = v
	for _, ch := range f.subs {
		offerLatest(ch, v)
	}
	f.mu.Unlock()

	if f.onChange != nil {
		f.onChange()
	}
}

// Subscribe returns a channel receiving every new value (latest wins) and a
// cancel function that closes it.
func (f *Field[T]) Subscribe() (<-chan T, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++
	ch := make(chan T, 1)
	f.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			close(ch)
			f.mu.Unlock()
		})
	}
	return ch, cancel
}

// offerLatest puts v in a 1-buffered channel, replacing any unread value.
func offerLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
