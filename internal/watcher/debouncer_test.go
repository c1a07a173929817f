package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEventPassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: one event is added
	d.Add(FileEvent{Path: "main.go", Operation: OpCreate})

	// Then: it is emitted after the window
	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, "main.go", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want []Operation
	}{
		{"modify repeated", []Operation{OpModify, OpModify, OpModify}, []Operation{OpModify}},
		{"create then modify", []Operation{OpCreate, OpModify}, []Operation{OpCreate}},
		{"modify then delete", []Operation{OpModify, OpDelete}, []Operation{OpDelete}},
		{"delete then create", []Operation{OpDelete, OpCreate}, []Operation{OpModify}},
		{"create then delete", []Operation{OpCreate, OpDelete}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer with a long window
			d := NewDebouncer(time.Hour)
			defer d.Stop()

			// When: events for one path arrive and the window is flushed
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "a.go", Operation: op})
			}
			d.Flush()

			// Then: the coalesced operation is emitted, or nothing
			if tt.want == nil {
				select {
				case batch := <-d.Output():
					t.Fatalf("unexpected batch %v", batch)
				default:
				}
				return
			}
			batch := receive(t, d)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want[0], batch[0].Operation)
		})
	}
}

func TestDebouncer_BatchIsSortedByPath(t *testing.T) {
	d := NewDebouncer(time.Hour)
	defer d.Stop()

	d.Add(FileEvent{Path: "z.go", Operation: OpModify})
	d.Add(FileEvent{Path: "a.go", Operation: OpCreate})
	d.Add(FileEvent{Path: "m/x.go", Operation: OpDelete})
	d.Flush()

	batch := receive(t, d)
	require.Len(t, batch, 3)
	assert.Equal(t, "a.go", batch[0].Path)
	assert.Equal(t, "m/x.go", batch[1].Path)
	assert.Equal(t, "z.go", batch[2].Path)
}

func TestDebouncer_WindowRestartsOnEachEvent(t *testing.T) {
	// Given: a 60ms window
	d := NewDebouncer(60 * time.Millisecond)
	defer d.Stop()

	// When: events keep arriving every 20ms
	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "a.go", Operation: OpModify})
		time.Sleep(20 * time.Millisecond)
	}

	// Then: a single batch arrives only after they stop
	batch := receive(t, d)
	assert.Len(t, batch, 1)
	select {
	case extra := <-d.Output():
		t.Fatalf("unexpected second batch %v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "a.go", Operation: OpModify})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "b.go", Operation: OpModify})
	d.Flush()

	_, ok := <-d.Output()
	assert.False(t, ok)
}
