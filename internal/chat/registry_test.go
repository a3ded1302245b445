// Chillter - Social Event Planning Realtime Core
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/chillter/realtime

package chat

import (
	"math/rand"
	"reflect"
	"sync"
	"testing"
)

func testClient(userID, eventID int64) *Client {
	return newClient(nil, userID, eventID, 100, 100)
}

func drain(c *Client) [][]byte {
	var frames [][]byte
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				return frames
			}
			frames = append(frames, payload)
		default:
			return frames
		}
	}
}

func TestJoinAndMembers(t *testing.T) {
	r := NewRegistry()

	r.Join(1, 10, testClient(10, 1))
	r.Join(1, 12, testClient(12, 1))
	r.Join(2, 10, testClient(10, 2))

	if got := r.MembersOf(1); !reflect.DeepEqual(got, []int64{10, 12}) {
		t.Errorf("MembersOf(1) = %v, want [10 12]", got)
	}
	if got := r.MembersOf(2); !reflect.DeepEqual(got, []int64{10}) {
		t.Errorf("MembersOf(2) = %v, want [10]", got)
	}
	if got := r.ConnectionCount(); got != 3 {
		t.Errorf("ConnectionCount() = %d, want 3", got)
	}
}

func TestMembersOfUnknownRoomIsEmpty(t *testing.T) {
	r := NewRegistry()
	if got := r.MembersOf(99); len(got) != 0 {
		t.Errorf("MembersOf(99) = %v, want empty", got)
	}
}

func TestRejoinLastConnectionWins(t *testing.T) {
	r := NewRegistry()
	first := testClient(10, 1)
	second := testClient(10, 1)

	r.Join(1, 10, first)
	r.Join(1, 10, second)

	if got := r.ConnectionCount(); got != 1 {
		t.Fatalf("ConnectionCount() = %d, want 1", got)
	}

	r.Broadcast(1, []byte("m"), nil)
	if frames := drain(first); len(frames) != 0 {
		t.Errorf("orphaned connection received %d frames, want 0", len(frames))
	}
	if frames := drain(second); len(frames) != 1 {
		t.Errorf("replacement connection received %d frames, want 1", len(frames))
	}
}

func TestOrphanLeaveDoesNotEvictReplacement(t *testing.T) {
	r := NewRegistry()
	first := testClient(10, 1)
	second := testClient(10, 1)

	r.Join(1, 10, first)
	r.Join(1, 10, second)

	// The orphan's own close fires after the replacement joined; removal is
	// by connection identity, so the replacement must survive.
	r.Leave(first)

	if got := r.MembersOf(1); !reflect.DeepEqual(got, []int64{10}) {
		t.Fatalf("MembersOf(1) = %v, want [10]", got)
	}
	r.Broadcast(1, []byte("m"), nil)
	if frames := drain(second); len(frames) != 1 {
		t.Errorf("replacement received %d frames after orphan left, want 1", len(frames))
	}
}

func TestLeaveRemovesEmptyRoom(t *testing.T) {
	r := NewRegistry()
	c := testClient(10, 1)

	r.Join(1, 10, c)
	r.Leave(c)

	if got := r.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount() = %d, want 0", got)
	}
	if got := len(r.rooms); got != 0 {
		t.Errorf("rooms left behind: %d, want 0", got)
	}
}

func TestBroadcastReachesRoomOnly(t *testing.T) {
	r := NewRegistry()
	inRoom := testClient(10, 1)
	otherRoom := testClient(11, 2)

	r.Join(1, 10, inRoom)
	r.Join(2, 11, otherRoom)

	r.Broadcast(1, []byte("hello"), nil)

	if frames := drain(inRoom); len(frames) != 1 || string(frames[0]) != "hello" {
		t.Errorf("room member frames = %q, want [hello]", frames)
	}
	if frames := drain(otherRoom); len(frames) != 0 {
		t.Errorf("other room received %d frames, want 0", len(frames))
	}
}

func TestBroadcastExcludes(t *testing.T) {
	r := NewRegistry()
	sender := testClient(10, 1)
	peer := testClient(11, 1)

	r.Join(1, 10, sender)
	r.Join(1, 11, peer)

	r.Broadcast(1, []byte("m"), sender)

	if frames := drain(sender); len(frames) != 0 {
		t.Errorf("excluded sender received %d frames, want 0", len(frames))
	}
	if frames := drain(peer); len(frames) != 1 {
		t.Errorf("peer received %d frames, want 1", len(frames))
	}
}

func TestBroadcastDropsSlowConnection(t *testing.T) {
	r := NewRegistry()
	slow := testClient(10, 1)
	healthy := testClient(11, 1)

	r.Join(1, 10, slow)
	r.Join(1, 11, healthy)

	for i := 0; i < sendBuffer; i++ {
		if !slow.enqueue([]byte("fill")) {
			t.Fatalf("filling buffer failed at frame %d", i)
		}
	}

	r.Broadcast(1, []byte("overflow"), nil)

	if got := r.MembersOf(1); !reflect.DeepEqual(got, []int64{11}) {
		t.Errorf("MembersOf(1) = %v, want [11] after slow drop", got)
	}
	// The dropped connection's channel must be closed so its write pump
	// sends a close frame and exits.
	slow.sendMu.Lock()
	closed := slow.closed
	slow.sendMu.Unlock()
	if !closed {
		t.Error("slow connection send channel not closed")
	}

	found := false
	for _, f := range drain(healthy) {
		if string(f) == "overflow" {
			found = true
		}
	}
	if !found {
		t.Error("healthy connection did not receive the frame")
	}
}

func TestCloseAll(t *testing.T) {
	r := NewRegistry()
	a := testClient(10, 1)
	b := testClient(11, 2)
	r.Join(1, 10, a)
	r.Join(2, 11, b)

	r.CloseAll()

	if got := r.ConnectionCount(); got != 0 {
		t.Errorf("ConnectionCount() = %d, want 0", got)
	}
	for _, c := range []*Client{a, b} {
		c.sendMu.Lock()
		closed := c.closed
		c.sendMu.Unlock()
		if !closed {
			t.Errorf("connection %d not closed", c.id)
		}
	}
}

// TestConcurrentChurn hammers the registry from many goroutines and checks
// it never panics and ends consistent.
func TestConcurrentChurn(t *testing.T) {
	r := NewRegistry()

	const workers = 16
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 200; i++ {
				eventID := int64(rng.Intn(4))
				userID := int64(rng.Intn(8))
				c := testClient(userID, eventID)
				r.Join(eventID, userID, c)
				r.Broadcast(eventID, []byte("x"), nil)
				r.MembersOf(eventID)
				if rng.Intn(2) == 0 {
					r.Leave(c)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	// At most one connection per (event, user) pair can remain.
	if got := r.ConnectionCount(); got > 4*8 {
		t.Errorf("ConnectionCount() = %d, want <= 32", got)
	}
	for eventID := int64(0); eventID < 4; eventID++ {
		members := r.MembersOf(eventID)
		for i := 1; i < len(members); i++ {
			if members[i-1] >= members[i] {
				t.Fatalf("MembersOf(%d) not strictly sorted: %v", eventID, members)
			}
		}
	}
}
