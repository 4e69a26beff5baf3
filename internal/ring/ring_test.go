package ring

import "testing"

func TestSlotBufferPutGet(t *testing.T) {
	b := NewSlotBuffer(2, 16)
	if err := b.Put([]byte("a")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put([]byte("b")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := b.Put([]byte("c")); err != ErrRingFull {
		t.Fatalf("Put on full buffer = %v, want ErrRingFull", err)
	}
	v, ok := b.Get()
	if !ok || string(v) != "a" {
		t.Fatalf("Get = (%q, %v), want (a, true)", v, ok)
	}
	if err := b.Put([]byte("c")); err != nil {
		t.Fatalf("Put after Get: %v", err)
	}
}

func TestSlotBufferDestructiveOldestFirst(t *testing.T) {
	b := NewSlotBuffer(4, 16)
	b.Put([]byte("1"))
	b.Put([]byte("2"))
	b.Put([]byte("3"))

	var got []string
	for {
		v, ok := b.Get()
		if !ok {
			break
		}
		got = append(got, string(v))
	}
	want := []string{"1", "2", "3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSlotBufferDrainReleasesAllPending(t *testing.T) {
	b := NewSlotBuffer(4, 16)
	b.Put([]byte("x"))
	b.Put([]byte("y"))
	drained := b.Drain()
	if len(drained) != 2 {
		t.Fatalf("Drain returned %d items, want 2", len(drained))
	}
	if b.Len() != 0 {
		t.Fatalf("Len after Drain = %d, want 0", b.Len())
	}
}

func TestStubRingFlushExecutesInline(t *testing.T) {
	r, err := NewRing(Config{Entries: 4})
	if err != nil {
		t.Fatalf("NewRing: %v", err)
	}
	defer r.Close()

	if err := r.Prepare(Op{Kind: OpFSRead, UserData: 42}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	n, err := r.Flush()
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n != 1 {
		t.Fatalf("Flush returned %d, want 1", n)
	}
	results, err := r.Poll()
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(results) != 1 || results[0].UserData() != 42 {
		t.Fatalf("Poll = %+v, want one result with UserData 42", results)
	}
}

func TestStubRingPrepareRejectsOverCapacity(t *testing.T) {
	r, _ := NewRing(Config{Entries: 1})
	defer r.Close()

	if err := r.Prepare(Op{UserData: 1}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := r.Prepare(Op{UserData: 2}); err != ErrRingFull {
		t.Fatalf("Prepare over capacity = %v, want ErrRingFull", err)
	}
}
