package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"inboxie_server/core/domain"
	"inboxie_server/core/port/out"
)

func testAdapter() *ProgressAdapter {
	return NewProgressAdapter(zerolog.Nop())
}

func TestPublishReachesSubscriber(t *testing.T) {
	a := testAdapter()
	userID := uuid.New()

	ch, cancel := a.Subscribe(userID)
	defer cancel()

	a.Publish(userID, out.ProgressEvent{Phase: domain.PhaseFetching, Batch: 1, At: time.Now()})

	select {
	case event := <-ch:
		if event.Phase != domain.PhaseFetching || event.Batch != 1 {
			t.Errorf("got phase=%s batch=%d", event.Phase, event.Batch)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishToOtherUserIsNotDelivered(t *testing.T) {
	a := testAdapter()

	ch, cancel := a.Subscribe(uuid.New())
	defer cancel()

	a.Publish(uuid.New(), out.ProgressEvent{Phase: domain.PhaseDone})

	select {
	case event := <-ch:
		t.Errorf("unexpected event: %+v", event)
	default:
	}
}

func TestCancelRemovesSubscription(t *testing.T) {
	a := testAdapter()
	userID := uuid.New()

	ch, cancel := a.Subscribe(userID)
	if got := a.ConnectedCount(); got != 1 {
		t.Fatalf("ConnectedCount = %d, want 1", got)
	}

	cancel()
	if got := a.ConnectedCount(); got != 0 {
		t.Errorf("ConnectedCount = %d, want 0", got)
	}

	// Cancel is safe to call twice.
	cancel()

	// Publishing after cancel must neither panic nor deliver.
	a.Publish(userID, out.ProgressEvent{Phase: domain.PhaseDone})
	select {
	case event := <-ch:
		t.Errorf("event delivered after cancel: %+v", event)
	default:
	}
}

func TestConcurrentPublishAndCancel(t *testing.T) {
	a := testAdapter()
	userID := uuid.New()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					a.Publish(userID, out.ProgressEvent{Phase: domain.PhaseLabeling})
				}
			}
		}()
	}

	// Subscribers churn while publishers are running. Disconnecting
	// mid-publish must not panic or corrupt the counters.
	for i := 0; i < 500; i++ {
		_, cancel := a.Subscribe(userID)
		cancel()
	}

	close(stop)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishers did not finish")
	}

	if got := a.ConnectedCount(); got != 0 {
		t.Errorf("ConnectedCount = %d, want 0", got)
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	a := testAdapter()
	userID := uuid.New()

	_, cancel := a.Subscribe(userID)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			a.Publish(userID, out.ProgressEvent{Phase: domain.PhaseClassifying, Batch: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on full subscriber buffer")
	}
}
