package observe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSubjectNotifiesInAttachmentOrder(t *testing.T) {
	s := NewSubject[int]()
	var got []string
	s.Attach(func(v int) { got = append(got, "a") })
	s.Attach(func(v int) { got = append(got, "b") })
	s.Attach(func(v int) { got = append(got, "c") })

	s.Notify(1)
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestSubjectDetach(t *testing.T) {
	s := NewSubject[string]()
	var got []string
	detach := s.Attach(func(v string) { got = append(got, "first:"+v) })
	s.Attach(func(v string) { got = append(got, "second:"+v) })

	s.Notify("x")
	detach()
	detach() // second call is a no-op
	s.Notify("y")

	require.Equal(t, []string{"first:x", "second:x", "second:y"}, got)
	require.Equal(t, 1, s.Count())
}

func TestSubjectIsolatesPanickingObserver(t *testing.T) {
	s := NewSubject[int]()
	var calls []int
	s.Attach(func(v int) { calls = append(calls, 1) })
	s.Attach(func(v int) { panic("boom") })
	s.Attach(func(v int) { calls = append(calls, 3) })

	require.NotPanics(t, func() { s.Notify(7) })
	require.Equal(t, []int{1, 3}, calls)
}

func TestSubjectObserverSeesPayload(t *testing.T) {
	s := NewSubject[int]()
	var last int
	s.Attach(func(v int) { last = v })
	s.Notify(42)
	require.Equal(t, 42, last)
}
