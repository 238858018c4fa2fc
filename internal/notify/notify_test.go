package notify

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/iliyamo/table-reservation/internal/model"
	"github.com/iliyamo/table-reservation/internal/queue"
)

type recordingPublisher struct{ got []queue.Notification }

func (p *recordingPublisher) Publish(_ context.Context, n queue.Notification) error {
	p.got = append(p.got, n)
	return nil
}

func TestDispatcherBuildsPayloads(t *testing.T) {
	pub := &recordingPublisher{}
	d := NewDispatcher(pub)
	d.now = func() time.Time { return time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	r := &model.Reservation{ID: "res-1", RestaurantID: "r1", Date: "2026-10-21", StartTime: "19:00", EndTime: "20:30", PartySize: 2, Status: model.StatusPending}
	_ = d.SendConfirmation(ctx, r)
	_ = d.SendCancellation(ctx, r)
	_ = d.SendWaitlistOffer(ctx, &model.WaitlistEntry{ID: "w-1", RestaurantID: "r1", Date: "2026-10-21", PartySize: 3},
		queue.FreedSlot{StartTime: "19:00", EndTime: "20:30"})

	if len(pub.got) != 3 {
		t.Fatalf("published %d notifications", len(pub.got))
	}
	want := []queue.NotificationKind{queue.KindConfirmation, queue.KindCancellation, queue.KindWaitlistOffer}
	for i, n := range pub.got {
		if n.Kind != want[i] {
			t.Errorf("notification %d kind = %s, want %s", i, n.Kind, want[i])
		}
		if n.SentAt != "2026-10-20T09:00:00Z" {
			t.Errorf("notification %d sent_at = %s", i, n.SentAt)
		}
	}
	if pub.got[2].WaitlistEntryID != "w-1" || pub.got[2].PartySize != 3 || pub.got[2].StartTime != "19:00" {
		t.Errorf("offer = %+v", pub.got[2])
	}
}

func TestRabbitPublishHonorsDeadline(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	// Accept connections and never answer the AMQP handshake.
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
		}
	}()

	p := NewRabbitPublisher("amqp://guest:guest@"+ln.Addr().String()+"/", "q")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	if err := p.Publish(ctx, queue.Notification{Kind: queue.KindConfirmation}); err == nil {
		t.Fatal("expected an error from a silent broker")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("publish took %s, want it bounded by the context deadline", elapsed)
	}
}
