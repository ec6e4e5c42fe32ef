package ring

import "testing"

func TestPushDrainOrder(t *testing.T) {
	var rb ClientRingBuffer

	for i := 0; i < 5; i++ {
		rb.Push(DecisionEvent{At: int64(i), Allowed: i%2 == 0})
	}

	var got []int64
	n := rb.Drain(func(e DecisionEvent) { got = append(got, e.At) })

	if n != 5 {
		t.Fatalf("Drain visited %d events, want 5", n)
	}
	for i, v := range got {
		if v != int64(i) {
			t.Fatalf("event %d = %d, want %d", i, v, i)
		}
	}

	// a second drain with nothing pushed sees nothing
	if n := rb.Drain(func(DecisionEvent) {}); n != 0 {
		t.Fatalf("second Drain visited %d, want 0", n)
	}
}

func TestDrainSkipsLostWindow(t *testing.T) {
	var rb ClientRingBuffer

	// push more than Capacity without draining: the oldest pushes are lost
	total := Capacity + 10
	for i := 0; i < total; i++ {
		rb.Push(DecisionEvent{At: int64(i)})
	}

	var got []int64
	n := rb.Drain(func(e DecisionEvent) { got = append(got, e.At) })

	if n != Capacity {
		t.Fatalf("Drain visited %d events, want %d (lost window skipped)", n, Capacity)
	}
	wantFirst := int64(total - Capacity)
	if got[0] != wantFirst {
		t.Fatalf("first visited event = %d, want %d", got[0], wantFirst)
	}
	if last := got[len(got)-1]; last != int64(total-1) {
		t.Fatalf("last visited event = %d, want %d", last, total-1)
	}
}

func TestDrainEmptyBuffer(t *testing.T) {
	var rb ClientRingBuffer
	if n := rb.Drain(func(DecisionEvent) {}); n != 0 {
		t.Fatalf("Drain on empty buffer visited %d, want 0", n)
	}
}
