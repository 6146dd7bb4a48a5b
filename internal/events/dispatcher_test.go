package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestDispatcher_PublishReachesSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	var got []string
	d.Subscribe(EventCaseCreated, func(_ context.Context, e Event) error {
		got = append(got, "first:"+e.CaseID)
		return errors.New("ignored")
	})
	d.Subscribe(EventCaseCreated, func(_ context.Context, e Event) error {
		got = append(got, "second:"+e.CaseID)
		return nil
	})
	d.Subscribe(EventCaseDeleted, func(_ context.Context, e Event) error {
		got = append(got, "deleted")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventCaseCreated, CaseID: "c-1"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"first:c-1", "second:c-1"}, got)
}

func TestActorOf(t *testing.T) {
	assert.Equal(t, Actor{}, ActorOf(nil))
}

func TestDispatcher_HandlerPanicIsContained(t *testing.T) {
	d := NewInMemoryDispatcher(zap.NewNop())

	reached := false
	d.Subscribe(EventCaseDeleted, func(context.Context, Event) error { panic("boom") })
	d.Subscribe(EventCaseDeleted, func(context.Context, Event) error {
		reached = true
		return nil
	})

	assert.NotPanics(t, func() {
		assert.NoError(t, d.Publish(context.Background(), Event{Type: EventCaseDeleted}))
	})
	assert.True(t, reached)
}
