package blob

import "testing"

func TestAllocAndMap(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	e, err := table.Alloc(256, 0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if len(e.Data) != 256 {
		t.Fatalf("Data len = %d, want 256", len(e.Data))
	}
	if e.RefCount() != 1 {
		t.Fatalf("RefCount = %d, want 1", e.RefCount())
	}
}

func TestAllocEnforcesMinimumSize(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	e, err := table.Alloc(1, 0)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if len(e.Data) < 128 {
		t.Fatalf("Data len = %d, want >= MinBlobBytes", len(e.Data))
	}
}

func TestDMARequiredFailsWithoutDMAPool(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	_, err := table.Alloc(4096, FlagDMARequired)
	if err != ErrOOM {
		t.Fatalf("Alloc with DMA required = %v, want ErrOOM", err)
	}
}

func TestDMAOptionalFallsBackWithoutDMAPool(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	_, err := table.Alloc(4096, FlagDMAOptional)
	if err != nil {
		t.Fatalf("Alloc with DMA optional: %v", err)
	}
}

func TestDMABothBitsTreatedAsOptional(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	_, err := table.Alloc(4096, FlagDMARequired|FlagDMAOptional)
	if err != nil {
		t.Fatalf("Alloc with both dma bits set: %v", err)
	}
}

func TestMapUnknownHandleReturnsNotFound(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	if _, err := table.Map(999, PermRead); err != ErrNotFound {
		t.Fatalf("Map(unknown) = %v, want ErrNotFound", err)
	}
}

func TestRetainIsProvisionalUntilCommit(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	e, _ := table.Alloc(256, 0)
	if err := table.Retain(e.Handle); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	if e.Retained {
		t.Fatal("Retained should be false before Commit")
	}
	table.Commit()
	if !e.Retained {
		t.Fatal("Retained should be true after Commit")
	}
}

func TestDiscardDropsJournalWithoutEffect(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	e, _ := table.Alloc(256, 0)
	if err := table.Retain(e.Handle); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	table.Discard()
	if e.Retained {
		t.Fatal("Retained should remain false after Discard")
	}
	if len(table.journal) != 0 {
		t.Fatal("journal should be empty after Discard")
	}
}

func TestDropEphemeralsRemovesUnretainedUncommitted(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	e, _ := table.Alloc(256, 0)
	table.DropEphemerals()
	if _, ok := table.Get(e.Handle); ok {
		t.Fatal("ephemeral blob should have been dropped")
	}
}

func TestCommitReleasesZeroRefcountUnretainedEntries(t *testing.T) {
	pool := NewPool(4, false)
	table := NewTable(pool, 1)

	e, _ := table.Alloc(256, 0)
	if err := table.Release(e.Handle); err != nil {
		t.Fatalf("Release: %v", err)
	}
	table.Commit()
	if _, ok := table.Get(e.Handle); ok {
		t.Fatal("blob with refcount 0 and no retention should be collected on commit")
	}
}
