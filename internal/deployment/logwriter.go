package deployment

import (
	"strings"
	"sync"
)

// ringLogCap bounds build_logs/runtime_logs retention (Open Question (b)):
// the source buffers both unbounded, which this implementation caps at the
// last 4096 lines, the same bounded-retention idea as the host panel's
// Caddyfile backup rotation (internal/caddy/manager.go's cleanupBackups,
// keep=10) applied to log lines instead of files.
const ringLogCap = 4096

// RingLog is an append-only, line-capped log buffer with live subscribers,
// adapted from plugins/deploy/logwriter.go's LogWriter: the broadcast-to-
// subscribers behavior is kept verbatim (non-blocking send, drop if slow),
// but writes now also trim to the last ringLogCap lines instead of growing
// an on-disk file without bound.
type RingLog struct {
	mu          sync.Mutex
	lines       []string
	partial     strings.Builder
	subscribers []chan []byte
}

// NewRingLog creates an empty RingLog.
func NewRingLog() *RingLog {
	return &RingLog{}
}

// Write implements io.Writer. Complete lines are appended to the ring;
// data is also broadcast verbatim to subscribers.
func (rl *RingLog) Write(p []byte) (int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.partial.Write(p)
	for {
		s := rl.partial.String()
		idx := strings.IndexByte(s, '\n')
		if idx == -1 {
			break
		}
		rl.appendLine(s[:idx])
		rl.partial.Reset()
		rl.partial.WriteString(s[idx+1:])
	}

	data := make([]byte, len(p))
	copy(data, p)
	for _, ch := range rl.subscribers {
		select {
		case ch <- data:
		default: // drop if subscriber is slow
		}
	}

	return len(p), nil
}

func (rl *RingLog) appendLine(line string) {
	rl.lines = append(rl.lines, line)
	if len(rl.lines) > ringLogCap {
		rl.lines = rl.lines[len(rl.lines)-ringLogCap:]
	}
}

// String returns the buffered log text.
func (rl *RingLog) String() string {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	out := strings.Join(rl.lines, "\n")
	if rl.partial.Len() > 0 {
		out += "\n" + rl.partial.String()
	}
	return out
}

// Subscribe returns a channel that receives log data as it is written.
func (rl *RingLog) Subscribe() chan []byte {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	ch := make(chan []byte, 64)
	rl.subscribers = append(rl.subscribers, ch)
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (rl *RingLog) Unsubscribe(ch chan []byte) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for i, sub := range rl.subscribers {
		if sub == ch {
			rl.subscribers = append(rl.subscribers[:i], rl.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}
