package deployment

import (
	"fmt"
	"strings"
	"testing"
)

func TestRingLogCapsAtLimit(t *testing.T) {
	rl := NewRingLog()
	for i := 0; i < ringLogCap+100; i++ {
		fmt.Fprintf(rl, "line %d\n", i)
	}

	lines := strings.Split(strings.TrimRight(rl.String(), "\n"), "\n")
	if len(lines) != ringLogCap {
		t.Fatalf("got %d lines, want %d", len(lines), ringLogCap)
	}
	if lines[0] != "line 100" {
		t.Fatalf("expected oldest surviving line to be \"line 100\", got %q", lines[0])
	}
}

func TestRingLogSubscriberReceivesWrites(t *testing.T) {
	rl := NewRingLog()
	ch := rl.Subscribe()
	defer rl.Unsubscribe(ch)

	fmt.Fprint(rl, "hello\n")

	select {
	case data := <-ch:
		if string(data) != "hello\n" {
			t.Fatalf("got %q, want %q", data, "hello\n")
		}
	default:
		t.Fatal("expected subscriber to receive the write")
	}
}

func TestRingLogPartialLineIncludedInString(t *testing.T) {
	rl := NewRingLog()
	fmt.Fprint(rl, "complete\npartial")

	if got := rl.String(); got != "complete\npartial" {
		t.Fatalf("got %q, want %q", got, "complete\npartial")
	}
}
