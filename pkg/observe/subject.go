package observe

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Observer receives a typed notification payload.
type Observer[T any] func(T)

// Subject fans out typed notifications to attached observers.
// Observers run synchronously, in attachment order. A panicking observer is
// logged and skipped so the remaining observers still run.
type Subject[T any] struct {
	mu        sync.Mutex
	nextID    int
	order     []int
	observers map[int]Observer[T]
}

func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{observers: map[int]Observer[T]{}}
}

// Attach registers an observer and returns a detach function. Detaching twice
// is a no-op.
func (s *Subject[T]) Attach(obs Observer[T]) func() {
	if s == nil || obs == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = obs
	s.order = append(s.order, id)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.detach(id) })
	}
}

func (s *Subject[T]) detach(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.observers, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Notify invokes all observers with the payload, in attachment order.
func (s *Subject[T]) Notify(payload T) {
	if s == nil {
		return
	}
	s.mu.Lock()
	obs := make([]Observer[T], 0, len(s.order))
	for _, id := range s.order {
		if o, ok := s.observers[id]; ok {
			obs = append(obs, o)
		}
	}
	s.mu.Unlock()

	for _, o := range obs {
		dispatchOne(o, payload)
	}
}

func dispatchOne[T any](obs Observer[T], payload T) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", "observe").Interface("panic", r).Msg("observer panicked, skipping")
		}
	}()
	obs(payload)
}

// Count reports the number of attached observers.
func (s *Subject[T]) Count() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers)
}
