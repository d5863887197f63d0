package hub

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microchat/internal/events"
	"microchat/internal/models"
)

func newHub(buffer int) *Hub {
	return New(logs.GetLoggerFromLevel(slog.LevelDebug), buffer)
}

func messageFrom(sender, receiver int64, no int) events.Event {
	chat := &models.Dialog{Actor: models.Actor{ID: sender}, Related: models.Actor{ID: receiver}}
	msg := models.Message{No: no, SenderID: sender, Text: lo.ToPtr("hello")}
	return events.NewMessageReceive(chat, msg, []int64{sender, receiver})
}

func TestEmitReachesOnlyRecipients(t *testing.T) {
	h := newHub(8)
	subs := map[int64]*Subscription{
		1: h.Subscribe(1),
		2: h.Subscribe(2),
		3: h.Subscribe(3),
	}

	// Given a message sent from 1 to 2
	h.Emit(messageFrom(1, 2, 0))

	// Then 1 and 2 got exactly one event and 3 got nothing
	assert.Equal(t, 1, subs[1].Len())
	assert.Equal(t, 1, subs[2].Len())
	assert.Equal(t, 0, subs[3].Len())
}

func TestEmitReachesEveryTabOfAUser(t *testing.T) {
	h := newHub(8)
	first := h.Subscribe(1)
	second := h.Subscribe(1)

	h.Emit(messageFrom(2, 1, 0))

	assert.Equal(t, 1, first.Len())
	assert.Equal(t, 1, second.Len())
}

func TestEmitToSelfDeliversOnce(t *testing.T) {
	h := newHub(8)
	sub := h.Subscribe(5)

	h.Emit(messageFrom(5, 5, 0))

	assert.Equal(t, 1, sub.Len())
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	h := newHub(8)
	sub := h.Subscribe(1)
	other := h.Subscribe(1)
	h.Emit(messageFrom(1, 2, 0))

	h.Unsubscribe(1, sub)
	assert.Equal(t, 1, h.Subscribers(1))
	assert.Equal(t, 0, sub.Len(), "buffered events are discarded")

	require.NotPanics(t, func() { h.Unsubscribe(1, sub) })
	assert.Equal(t, 1, h.Subscribers(1))

	h.Unsubscribe(1, other)
	h.Unsubscribe(1, other)
	assert.Equal(t, 0, h.Users())
}

func TestUnsubscribedQueueReceivesNothing(t *testing.T) {
	h := newHub(8)
	sub := h.Subscribe(1)
	h.Unsubscribe(1, sub)

	h.Emit(messageFrom(1, 2, 0))

	assert.Equal(t, 0, sub.Len())
	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFullQueueDropsOldest(t *testing.T) {
	h := newHub(2)
	sub := h.Subscribe(1)

	for no := 0; no < 3; no++ {
		h.Emit(messageFrom(2, 1, no))
	}

	require.Equal(t, 2, sub.Len())
	ctx := context.Background()
	first, err := sub.Next(ctx)
	require.NoError(t, err)
	second, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, first.(*events.MessageReceive).No)
	assert.Equal(t, 2, second.(*events.MessageReceive).No)
}

func TestNextBlocksUntilEmit(t *testing.T) {
	h := newHub(8)
	sub := h.Subscribe(1)
	got := make(chan events.Event, 1)

	go func() {
		evt, err := sub.Next(context.Background())
		if err == nil {
			got <- evt
		}
	}()

	select {
	case <-got:
		t.Fatal("Next returned before any event was emitted")
	case <-time.After(20 * time.Millisecond):
	}

	h.Emit(messageFrom(2, 1, 4))

	select {
	case evt := <-got:
		assert.Equal(t, events.KindMessageReceive, evt.Kind())
	case <-time.After(time.Second):
		t.Fatal("Next did not return after emit")
	}
}

func TestNextHonoursContext(t *testing.T) {
	h := newHub(8)
	sub := h.Subscribe(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := sub.Next(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNextWakesOnUnsubscribe(t *testing.T) {
	h := newHub(8)
	sub := h.Subscribe(1)
	errs := make(chan error, 1)

	go func() {
		_, err := sub.Next(context.Background())
		errs <- err
	}()
	time.Sleep(10 * time.Millisecond)
	h.Unsubscribe(1, sub)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Next did not wake up")
	}
}

func TestHandlersRunAfterDelivery(t *testing.T) {
	h := newHub(8)
	var kinds []string
	var all int
	h.On(events.KindMessageReceive, func(evt events.Event) { kinds = append(kinds, evt.Kind()) })
	h.On(events.KindMessageDelete, func(evt events.Event) { kinds = append(kinds, "wrong") })
	h.OnAny(func(events.Event) { all++ })

	h.Emit(messageFrom(1, 2, 0))

	assert.Equal(t, []string{events.KindMessageReceive}, kinds)
	assert.Equal(t, 1, all)
}

func TestDeliverSkipsHandlers(t *testing.T) {
	h := newHub(8)
	sub := h.Subscribe(2)
	called := false
	h.OnAny(func(events.Event) { called = true })

	h.Deliver(messageFrom(1, 2, 0))

	assert.False(t, called)
	assert.Equal(t, 1, sub.Len())
}

func TestConcurrentEmitAndUnsubscribe(t *testing.T) {
	h := newHub(4)
	var wg sync.WaitGroup
	for user := int64(1); user <= 20; user++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			sub := h.Subscribe(user)
			h.Emit(messageFrom(user, user+1, 0))
			h.Unsubscribe(user, sub)
		}(user)
	}
	wg.Wait()

	assert.Equal(t, 0, h.Users())
}
