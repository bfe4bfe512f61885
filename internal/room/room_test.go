package room

import (
	"context"
	"sync"
	"testing"
)

func TestJoinRacingCloseLeavesNoLiveParticipant(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		m, _, _ := newTestManager()
		mustJoin(t, m, "r1", "alice", "pid-a")
		r, ok := m.getRoom("r1")
		if !ok {
			t.Fatal("room not found")
		}

		var wg sync.WaitGroup
		var p *Participant
		var joinErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			p, joinErr = r.Join(ctx, "pid-b", "bob", false, true)
		}()
		go func() {
			defer wg.Done()
			r.Close(ctx)
		}()
		wg.Wait()

		// Either the join lost to the close, or it won and the close
		// drained it. A live participant inside a closed room is the bug.
		if joinErr == nil && !p.IsClosed() {
			t.Fatalf("iteration %d: participant joined a closed room and was never closed", i)
		}
	}
}

func TestJoinClosedRoomFails(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager()
	mustJoin(t, m, "r1", "alice", "pid-a")
	r, _ := m.getRoom("r1")
	r.Close(ctx)

	if _, err := r.Join(ctx, "pid-b", "bob", false, true); !IsCode(err, RoomClosed) {
		t.Fatalf("expected RoomClosed, got %v", err)
	}
}
