package feed

import "testing"

func TestBacklog_Range(t *testing.T) {
	b := NewBacklog(100)
	for i := int64(1); i <= 10; i++ {
		b.Push(i, []byte("msg"))
	}

	got := b.Range(3, 7)
	if len(got) != 5 {
		t.Fatalf("Range(3,7): expected 5, got %d", len(got))
	}
	for i, e := range got {
		if want := int64(i) + 3; e.Seq != want {
			t.Errorf("entry[%d].Seq = %d, want %d", i, e.Seq, want)
		}
	}
}

func TestBacklog_Wraparound(t *testing.T) {
	b := NewBacklog(5)
	for i := int64(1); i <= 8; i++ {
		b.Push(i, []byte("msg"))
	}

	if b.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", b.Len())
	}
	got := b.Range(1, 10)
	if len(got) != 5 {
		t.Fatalf("Range(1,10): expected 5, got %d", len(got))
	}
	if got[0].Seq != 4 || got[4].Seq != 8 {
		t.Errorf("kept seqs %d..%d, want 4..8", got[0].Seq, got[4].Seq)
	}
}

func TestBacklog_CopiesData(t *testing.T) {
	b := NewBacklog(2)
	data := []byte("abc")
	b.Push(1, data)
	data[0] = 'x'
	if got := string(b.Range(1, 1)[0].Data); got != "abc" {
		t.Errorf("stored %q, want abc", got)
	}
}

func TestBacklog_Empty(t *testing.T) {
	if got := NewBacklog(0).Range(1, 100); len(got) != 0 {
		t.Fatalf("empty backlog Range should return 0, got %d", len(got))
	}
}
