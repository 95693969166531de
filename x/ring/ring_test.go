package ring

import (
	"bytes"
	"testing"
)

func TestWriteReadWrap(t *testing.T) {
	r := New(8)

	if n := r.WriteFrom([]byte("abcde")); n != 5 {
		t.Fatalf("WriteFrom = %d, want 5", n)
	}
	buf := make([]byte, 3)
	if n := r.ReadInto(buf); n != 3 || string(buf) != "abc" {
		t.Fatalf("ReadInto = %d %q", n, buf[:n])
	}
	// Wrap the write index over the end of the buffer.
	if n := r.WriteFrom([]byte("fghij")); n != 5 {
		t.Fatalf("wrapped WriteFrom = %d, want 5", n)
	}
	out := make([]byte, 16)
	n := r.ReadInto(out)
	if got, want := string(out[:n]), "defghij"; got != want {
		t.Fatalf("drained %q, want %q", got, want)
	}
}

func TestNeverOverwrites(t *testing.T) {
	r := New(4)
	if n := r.WriteFrom([]byte("1234")); n != 4 {
		t.Fatalf("fill = %d, want 4", n)
	}
	if n := r.WriteFrom([]byte("x")); n != 0 {
		t.Fatalf("write to full ring = %d, want 0", n)
	}
	buf := make([]byte, 4)
	r.ReadInto(buf)
	if !bytes.Equal(buf, []byte("1234")) {
		t.Fatalf("data corrupted: %q", buf)
	}
}

func TestReadableEdge(t *testing.T) {
	r := New(8)
	select {
	case <-r.Readable():
		t.Fatal("readable before any write")
	default:
	}
	r.WriteFrom([]byte("a"))
	select {
	case <-r.Readable():
	default:
		t.Fatal("no readable edge after write to empty ring")
	}
	// A second write to a non-empty ring must not queue another edge.
	r.WriteFrom([]byte("b"))
	select {
	case <-r.Readable():
		t.Fatal("unexpected second edge")
	default:
	}
}

func TestBadSizePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non power-of-two size")
		}
	}()
	New(6)
}
