package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/keelhq/keel/internal/types"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestKeyspace_SetGetDelete(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, err := s.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin() failed: %v", err)
	}
	kv := tx.Keyspace("escrow")

	if err := kv.Set(ctx, "case", U64Key(1), []byte("a")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	v, ok, err := kv.Get(ctx, "case", U64Key(1))
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v, %v", v, ok, err)
	}
	if string(v) != "a" {
		t.Errorf("Get() = %q, want %q", v, "a")
	}

	// overwrite
	if err := kv.Set(ctx, "case", U64Key(1), []byte("b")); err != nil {
		t.Fatalf("Set() overwrite failed: %v", err)
	}
	v, _, _ = kv.Get(ctx, "case", U64Key(1))
	if string(v) != "b" {
		t.Errorf("Get() after overwrite = %q, want %q", v, "b")
	}

	if err := kv.Delete(ctx, "case", U64Key(1)); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	_, ok, _ = kv.Get(ctx, "case", U64Key(1))
	if ok {
		t.Error("Get() after Delete() reported existence")
	}

	// deleting an absent key is a no-op
	if err := kv.Delete(ctx, "case", U64Key(42)); err != nil {
		t.Errorf("Delete() of absent key failed: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}
}

func TestKeyspace_Isolation(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	if err := tx.Keyspace("escrow").Set(ctx, "case", U64Key(1), []byte("x")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	// same ns, different component: invisible
	_, ok, err := s.View("vault").Get(ctx, "case", U64Key(1))
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if ok {
		t.Error("components must not see each other's keyspaces")
	}
}

func TestKeyspace_AscendExclusiveCursor(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	kv := tx.Keyspace("escrow")
	for id := uint64(1); id <= 5; id++ {
		if err := kv.Set(ctx, "case", U64Key(id), []byte{byte(id)}); err != nil {
			t.Fatalf("Set(%d) failed: %v", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	view := s.View("escrow")

	// from the beginning
	entries, err := view.Ascend(ctx, "case", nil, 3)
	if err != nil {
		t.Fatalf("Ascend() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Ascend() returned %d entries, want 3", len(entries))
	}
	first, _ := ParseU64Key(entries[0].Key)
	if first != 1 {
		t.Errorf("first key = %d, want 1", first)
	}

	// exclusive start-after
	entries, err = view.Ascend(ctx, "case", U64Key(3), 10)
	if err != nil {
		t.Fatalf("Ascend() failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Ascend(after=3) returned %d entries, want 2", len(entries))
	}
	got, _ := ParseU64Key(entries[0].Key)
	if got != 4 {
		t.Errorf("first key after cursor = %d, want 4", got)
	}
}

func TestKeyspace_AscendPrefix(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	kv := tx.Keyspace("escrow")
	for _, acct := range []string{"alice", "bob"} {
		for id := uint64(1); id <= 3; id++ {
			if err := kv.Set(ctx, "case_by_party", AccountU64Key(acct, id), []byte{1}); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	entries, err := s.View("escrow").AscendPrefix(ctx, "case_by_party", AccountPrefix("alice"), nil, 10)
	if err != nil {
		t.Fatalf("AscendPrefix() failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("AscendPrefix() returned %d entries, want 3", len(entries))
	}
	for _, e := range entries {
		acct, _, err := ParseAccountU64Key(e.Key)
		if err != nil {
			t.Fatalf("ParseAccountU64Key() failed: %v", err)
		}
		if acct != "alice" {
			t.Errorf("prefix scan leaked account %q", acct)
		}
	}
}

func TestBank_CreditDebit(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	if err := tx.Credit(ctx, "escrow", types.NewCoin("usei", types.NewUint(1000))); err != nil {
		t.Fatalf("Credit() failed: %v", err)
	}
	if err := tx.Debit(ctx, "escrow", types.NewCoin("usei", types.NewUint(400))); err != nil {
		t.Fatalf("Debit() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	bal, err := s.Balance(ctx, "escrow", "usei")
	if err != nil {
		t.Fatalf("Balance() failed: %v", err)
	}
	if bal.String() != "600" {
		t.Errorf("Balance() = %s, want 600", bal)
	}

	// over-debit fails
	tx, _ = s.Begin(ctx)
	err = tx.Debit(ctx, "escrow", types.NewCoin("usei", types.NewUint(601)))
	if err == nil {
		t.Fatal("Debit() beyond balance should fail")
	}
	tx.Rollback()
}

func TestRollback_DiscardsEverything(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	if err := tx.Keyspace("vault").Set(ctx, "vault", U64Key(1), []byte("v")); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := tx.Credit(ctx, "vault", types.NewCoin("usei", types.NewUint(500))); err != nil {
		t.Fatalf("Credit() failed: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}

	_, ok, _ := s.View("vault").Get(ctx, "vault", U64Key(1))
	if ok {
		t.Error("state survived rollback")
	}
	bal, _ := s.Balance(ctx, "vault", "usei")
	if !bal.IsZero() {
		t.Errorf("balance survived rollback: %s", bal)
	}
}

func TestLog_AppendAndRead(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	tx, _ := s.Begin(ctx)
	seq, err := tx.NextSeq(ctx)
	if err != nil {
		t.Fatalf("NextSeq() failed: %v", err)
	}
	if seq != 1 {
		t.Errorf("first seq = %d, want 1", seq)
	}
	rec := &InvocationRecord{
		Seq:       seq,
		Token:     "tok-1",
		Kind:      KindExecute,
		Component: "escrow",
		Caller:    "alice",
		Funds:     []types.Coin{types.NewCoin("usei", types.NewUint(1000))},
		Payload:   []byte(`{"approve":{"case_id":1}}`),
		Action:    "approve",
		BlockTime: 1700000000,
	}
	if err := tx.AppendInvocation(ctx, rec); err != nil {
		t.Fatalf("AppendInvocation() failed: %v", err)
	}
	ev := types.NewEvent("escrow.approve", "case_id", "1", "approver", "alice")
	if err := tx.WriteEvents(ctx, seq, []types.Event{ev}); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}
	if err := tx.WriteTransfers(ctx, seq, "escrow", []types.Transfer{
		{Recipient: "bob", Amount: types.NewCoin("usei", types.NewUint(10))},
	}); err != nil {
		t.Fatalf("WriteTransfers() failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit() failed: %v", err)
	}

	records, err := s.ReadInvocations(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ReadInvocations() failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("ReadInvocations() returned %d records, want 1", len(records))
	}
	got := records[0]
	if got.Token != "tok-1" || got.Kind != KindExecute || got.Caller != "alice" {
		t.Errorf("record mismatch: %+v", got)
	}
	if len(got.Funds) != 1 || got.Funds[0].String() != "1000usei" {
		t.Errorf("funds mismatch: %+v", got.Funds)
	}

	events, err := s.ReadEvents(ctx, 0, 0)
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(events) != 1 || events[0].Event.Type != "escrow.approve" {
		t.Fatalf("ReadEvents() mismatch: %+v", events)
	}
	if events[0].Event.Attributes[0].Value != "1" {
		t.Errorf("attribute mismatch: %+v", events[0].Event.Attributes)
	}
}

func TestStateHash_Deterministic(t *testing.T) {
	build := func() *Store {
		s := openTest(t)
		ctx := context.Background()
		tx, _ := s.Begin(ctx)
		kv := tx.Keyspace("escrow")
		// insertion order differs between the two stores; hash must not care
		for _, id := range []uint64{3, 1, 2} {
			if err := kv.Set(ctx, "case", U64Key(id), []byte{byte(id)}); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}
		}
		if err := tx.Credit(ctx, "escrow", types.NewCoin("usei", types.NewUint(77))); err != nil {
			t.Fatalf("Credit() failed: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() failed: %v", err)
		}
		return s
	}

	ctx := context.Background()
	h1, err := build().StateHash(ctx)
	if err != nil {
		t.Fatalf("StateHash() failed: %v", err)
	}
	h2, err := build().StateHash(ctx)
	if err != nil {
		t.Fatalf("StateHash() failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("state hashes diverge: %s vs %s", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64", len(h1))
	}
}
