package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chronicler-ai/chronicler/pkg/pipeline"
)

type completion struct {
	chunkID string
	outcome pipeline.Outcome
	outputs []pipeline.Output
}

type fakeStore struct {
	mu          sync.Mutex
	queue       []pipeline.Chunk
	claims      int
	completions []completion
	released    []string
	claimErr    error
}

func (f *fakeStore) ClaimNext(ctx context.Context, stage pipeline.Stage, maxBatch int) ([]pipeline.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claims++
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	n := min(maxBatch, len(f.queue))
	batch := f.queue[:n]
	f.queue = f.queue[n:]
	return batch, nil
}

func (f *fakeStore) CompleteChunk(ctx context.Context, stage pipeline.Stage, chunkID string, outcome pipeline.Outcome, outputs []pipeline.Output) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.completions {
		if c.chunkID == chunkID {
			return nil
		}
	}
	f.completions = append(f.completions, completion{chunkID, outcome, outputs})
	return nil
}

func (f *fakeStore) ReleaseClaims(ctx context.Context, stage pipeline.Stage, chunkIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, chunkIDs...)
	return nil
}

func (f *fakeStore) snapshot() ([]completion, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completion(nil), f.completions...), append([]string(nil), f.released...)
}

func chunk(id string) pipeline.Chunk {
	return pipeline.Chunk{ID: id, Stage: pipeline.StageExtract, Payload: json.RawMessage(`{}`)}
}

func runUntil(t *testing.T, store *fakeStore, handler Handler, done func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan error, 1)
	go func() {
		finished <- RunForever(ctx, Config{Stage: pipeline.StageExtract, MaxBatch: 5, IdleBackoff: 5 * time.Millisecond}, store, handler)
	}()

	deadline := time.After(2 * time.Second)
	for !done() {
		select {
		case <-deadline:
			cancel()
			<-finished
			t.Fatal("condition not reached before deadline")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-finished; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunForever returned %v, want context.Canceled", err)
	}
}

func TestRunForever_PerChunkFailureIsolation(t *testing.T) {
	store := &fakeStore{queue: []pipeline.Chunk{chunk("a"), chunk("b"), chunk("c"), chunk("d"), chunk("e")}}

	handler := PerChunk(func(ctx context.Context, c pipeline.Chunk) ([]pipeline.Output, error) {
		if c.ID == "c" {
			return nil, errors.New("oracle timeout")
		}
		return []pipeline.Output{{Stage: pipeline.StageEnrich, Payload: c.ID}}, nil
	})

	runUntil(t, store, handler, func() bool {
		comps, _ := store.snapshot()
		return len(comps) == 5
	})

	comps, released := store.snapshot()
	if len(released) != 0 {
		t.Fatalf("released = %v, want none", released)
	}

	outcomes := map[string]pipeline.Outcome{}
	for _, c := range comps {
		outcomes[c.chunkID] = c.outcome
	}
	for _, id := range []string{"a", "b", "d", "e"} {
		if outcomes[id] != pipeline.OutcomeSuccess {
			t.Fatalf("chunk %s outcome = %s, want success", id, outcomes[id])
		}
	}
	if outcomes["c"] != pipeline.OutcomeFailure {
		t.Fatalf("chunk c outcome = %s, want failure", outcomes["c"])
	}

	for _, c := range comps {
		if c.outcome == pipeline.OutcomeSuccess && len(c.outputs) != 1 {
			t.Fatalf("chunk %s outputs = %d, want 1", c.chunkID, len(c.outputs))
		}
		if c.outcome == pipeline.OutcomeFailure && len(c.outputs) != 0 {
			t.Fatalf("failed chunk %s has outputs", c.chunkID)
		}
	}
}

func TestRunForever_EmptyQueueIdlesUntilCancel(t *testing.T) {
	store := &fakeStore{}
	handler := PerChunk(func(ctx context.Context, c pipeline.Chunk) ([]pipeline.Output, error) {
		t.Error("handler must not run on empty queue")
		return nil, nil
	})

	runUntil(t, store, handler, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.claims >= 3
	})

	comps, _ := store.snapshot()
	if len(comps) != 0 {
		t.Fatalf("completions = %v, want none", comps)
	}
}

func TestRunForever_ClaimErrorRetriesNextCycle(t *testing.T) {
	store := &fakeStore{claimErr: pipeline.ErrStorageUnavailable}
	handler := PerChunk(func(ctx context.Context, c pipeline.Chunk) ([]pipeline.Output, error) {
		return nil, nil
	})

	runUntil(t, store, handler, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.claims >= 2
	})
}

func TestRunForever_ReleaseResultReturnsChunk(t *testing.T) {
	store := &fakeStore{queue: []pipeline.Chunk{chunk("a"), chunk("b")}}

	handler := handlerFunc(func(ctx context.Context, chunks []pipeline.Chunk) ([]Result, error) {
		results := make([]Result, 0, len(chunks))
		for _, c := range chunks {
			if c.ID == "b" {
				results = append(results, Result{ChunkID: c.ID, Release: true})
				continue
			}
			results = append(results, Result{ChunkID: c.ID, Outcome: pipeline.OutcomeSuccess})
		}
		return results, nil
	})

	runUntil(t, store, handler, func() bool {
		comps, released := store.snapshot()
		return len(comps) == 1 && len(released) == 1
	})

	comps, released := store.snapshot()
	if comps[0].chunkID != "a" {
		t.Fatalf("completed chunk = %s, want a", comps[0].chunkID)
	}
	if released[0] != "b" {
		t.Fatalf("released chunk = %s, want b", released[0])
	}
}

func TestPerChunk_CancelReleasesRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	handler := PerChunk(func(ctx context.Context, c pipeline.Chunk) ([]pipeline.Output, error) {
		calls++
		cancel()
		return nil, nil
	})

	results, err := handler.Process(ctx, []pipeline.Chunk{chunk("a"), chunk("b"), chunk("c")})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[0].Release || results[0].Outcome != pipeline.OutcomeSuccess {
		t.Fatalf("first result = %+v, want success", results[0])
	}
	for _, r := range results[1:] {
		if !r.Release {
			t.Fatalf("result %s not released after cancel", r.ChunkID)
		}
	}
}

type handlerFunc func(ctx context.Context, chunks []pipeline.Chunk) ([]Result, error)

func (f handlerFunc) Process(ctx context.Context, chunks []pipeline.Chunk) ([]Result, error) {
	return f(ctx, chunks)
}
