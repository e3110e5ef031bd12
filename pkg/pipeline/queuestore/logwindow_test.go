package queuestore

import (
	"testing"
	"time"
)

func TestPlanWindow(t *testing.T) {
	now := time.Now()
	fresh := now.Add(-time.Minute)
	stale := now.Add(-30 * time.Minute)
	flushAfter := 10 * time.Minute

	tests := []struct {
		name            string
		count           int
		retained        int
		oldestUnemitted time.Time
		wantOK          bool
		wantEmitFrom    int
		wantKeep        int
	}{
		{
			name:  "empty window never emits",
			count: 0,
		},
		{
			name:            "full window emits immediately",
			count:           8,
			retained:        3,
			oldestUnemitted: fresh,
			wantOK:          true,
			wantEmitFrom:    3,
			wantKeep:        3,
		},
		{
			name:            "first full window owns every entry",
			count:           8,
			retained:        0,
			oldestUnemitted: fresh,
			wantOK:          true,
			wantEmitFrom:    0,
			wantKeep:        3,
		},
		{
			name:            "fresh partial window waits",
			count:           5,
			retained:        3,
			oldestUnemitted: fresh,
		},
		{
			name:            "stale partial window flushes",
			count:           5,
			retained:        3,
			oldestUnemitted: stale,
			wantOK:          true,
			wantEmitFrom:    3,
			wantKeep:        3,
		},
		{
			name:            "stale tail shorter than overlap still flushes",
			count:           2,
			retained:        0,
			oldestUnemitted: stale,
			wantOK:          true,
			wantEmitFrom:    0,
			wantKeep:        2,
		},
		{
			name:            "fully retained tail does not flush again",
			count:           2,
			retained:        2,
			oldestUnemitted: stale,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, ok := planWindow(tt.count, tt.retained, 8, 3, tt.oldestUnemitted, flushAfter, now)
			if ok != tt.wantOK {
				t.Fatalf("planWindow() ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if plan.emitFrom != tt.wantEmitFrom {
				t.Errorf("emitFrom = %d, want %d", plan.emitFrom, tt.wantEmitFrom)
			}
			if plan.keep != tt.wantKeep {
				t.Errorf("keep = %d, want %d", plan.keep, tt.wantKeep)
			}
		})
	}
}

// A flush shorter than the overlap keeps the cursor in place; the
// retained count alone must stop the same tail from flushing twice.
func TestPlanWindowFlushedTailConverges(t *testing.T) {
	now := time.Now()
	stale := now.Add(-time.Hour)

	plan, ok := planWindow(2, 0, 8, 3, stale, 10*time.Minute, now)
	if !ok {
		t.Fatal("planWindow() expected first flush")
	}
	if plan.keep != 2 {
		t.Fatalf("keep = %d, want 2", plan.keep)
	}

	if _, ok := planWindow(2, plan.keep, 8, 3, stale, 10*time.Minute, now); ok {
		t.Fatal("planWindow() flushed the same tail twice")
	}

	// Once fresh entries arrive the window grows past the flushed tail
	// and emits only the new entries.
	grown, ok := planWindow(8, plan.keep, 8, 3, stale, 10*time.Minute, now)
	if !ok {
		t.Fatal("planWindow() expected full window after new entries")
	}
	if grown.emitFrom != 2 {
		t.Fatalf("emitFrom = %d, want 2", grown.emitFrom)
	}
}
