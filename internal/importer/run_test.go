package importer

import (
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestRun_StateTransitions(t *testing.T) {
	run := newRun("index.html")
	if run.Status != StatusRunning {
		t.Fatalf("expected status %q, got %q", StatusRunning, run.Status)
	}

	transitions := []struct {
		status RunStatus
		phase  string
	}{
		{StatusRunning, "importing"},
		{StatusRunning, "resolving"},
		{StatusCompleted, "done"},
	}
	for _, tr := range transitions {
		before := run.UpdatedAt
		time.Sleep(time.Millisecond)
		run.SetStatus(tr.status, tr.phase)

		if run.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, run.Status)
		}
		if run.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, run.Phase)
		}
		if !run.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestRun_Counters(t *testing.T) {
	run := newRun("x")
	run.IncrNodesCreated()
	run.IncrNodesCreated()
	run.IncrFilesDownloaded()
	run.IncrCacheHits()
	run.AddWarning("unterminated expression")

	snap := run.Snapshot()
	if snap.Progress.NodesCreated != 2 {
		t.Errorf("expected 2 nodes, got %d", snap.Progress.NodesCreated)
	}
	if snap.Progress.FilesDownloaded != 1 || snap.Progress.CacheHits != 1 {
		t.Errorf("unexpected download counters %+v", snap.Progress)
	}
	if len(snap.Progress.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(snap.Progress.Warnings))
	}
}

func TestRun_SnapshotSlicesNotNil(t *testing.T) {
	snap := newRun("x").Snapshot()
	if snap.Progress.Warnings == nil || snap.Progress.Errors == nil {
		t.Error("expected non-nil slices in snapshot")
	}
}
