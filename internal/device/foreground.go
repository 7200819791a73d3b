package device

import "sync"

// ForegroundState tracks whether the app is foregrounded. It is driven
// externally, e.g. by the control API.
type ForegroundState struct {
	mu          sync.Mutex
	active      bool
	nextID      int
	subscribers map[int]func(bool)
}

func NewForegroundState(active bool) *ForegroundState {
	return &ForegroundState{active: active, subscribers: make(map[int]func(bool))}
}

func (f *ForegroundState) IsForeground() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// SetForeground updates the state and notifies subscribers on a change.
func (f *ForegroundState) SetForeground(active bool) {
	f.mu.Lock()
	if f.active == active {
		f.mu.Unlock()
		return
	}
	f.active = active
	subscribers := make([]func(bool), 0, len(f.subscribers))
	for _, fn := range f.subscribers {
		subscribers = append(subscribers, fn)
	}
	f.mu.Unlock()

	for _, fn := range subscribers {
		fn(active)
	}
}

func (f *ForegroundState) Subscribe(fn func(bool)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subscribers, id)
		})
	}
}
