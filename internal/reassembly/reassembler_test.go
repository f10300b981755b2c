package reassembly

import (
	"math/rand"
	"testing"
	"time"

	"github.com/kongor-project/bercon/internal/codec"
)

func TestAssemblesSinglePartUnchanged(t *testing.T) {
	r := New()
	payload, ok := r.Add(&codec.CommandPart{Seq: 5, Total: 1, Index: 0, Data: []byte("hi")}, time.Now())
	if !ok || string(payload) != "hi" {
		t.Fatalf("payload=%q ok=%v, want %q true", payload, ok, "hi")
	}
}

func TestAssembliesInvariantUnderPartPermutation(t *testing.T) {
	words := []string{"the", " quick", " brown", " fox", " jumps"}
	want := ""
	for _, w := range words {
		want += w
	}

	perm := rand.New(rand.NewSource(1)).Perm(len(words))
	r := New()
	var got []byte
	var ok bool
	now := time.Now()
	for _, idx := range perm {
		got, ok = r.Add(&codec.CommandPart{
			Seq:   9,
			Total: uint8(len(words)),
			Index: uint8(idx),
			Data:  []byte(words[idx]),
		}, now)
	}
	if !ok || string(got) != want {
		t.Fatalf("got=%q ok=%v, want %q true", got, ok, want)
	}
}

func TestDuplicatePartIsIdempotent(t *testing.T) {
	r := New()
	now := time.Now()
	r.Add(&codec.CommandPart{Seq: 1, Total: 2, Index: 0, Data: []byte("a")}, now)
	r.Add(&codec.CommandPart{Seq: 1, Total: 2, Index: 0, Data: []byte("a")}, now) // duplicate
	payload, ok := r.Add(&codec.CommandPart{Seq: 1, Total: 2, Index: 1, Data: []byte("b")}, now)
	if !ok || string(payload) != "ab" {
		t.Fatalf("payload=%q ok=%v, want %q true", payload, ok, "ab")
	}
}

func TestMismatchedTotalDropsEntry(t *testing.T) {
	r := New()
	now := time.Now()
	r.Add(&codec.CommandPart{Seq: 3, Total: 2, Index: 0, Data: []byte("a")}, now)
	_, ok := r.Add(&codec.CommandPart{Seq: 3, Total: 3, Index: 1, Data: []byte("b")}, now)
	if ok {
		t.Fatalf("expected protocol violation to be dropped, not completed")
	}
	if r.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after drop", r.Pending())
	}
}

func TestGCExpiresStaleEntries(t *testing.T) {
	r := New()
	start := time.Now()
	r.Add(&codec.CommandPart{Seq: 4, Total: 2, Index: 0, Data: []byte("a")}, start)
	r.GC(start.Add(5 * time.Second))
	if r.Pending() != 1 {
		t.Fatalf("pending = %d, want 1 before TTL elapses", r.Pending())
	}
	r.GC(start.Add(11 * time.Second))
	if r.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after TTL elapses", r.Pending())
	}
}

func TestDropSeqRemovesInProgressEntry(t *testing.T) {
	r := New()
	r.Add(&codec.CommandPart{Seq: 2, Total: 2, Index: 0, Data: []byte("a")}, time.Now())
	r.DropSeq(2)
	if r.Pending() != 0 {
		t.Fatalf("pending = %d, want 0 after DropSeq", r.Pending())
	}
}
