package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/sitefetch/internal/store"
)

func seedRuns(t *testing.T, path string) {
	t.Helper()
	st := openStoreForTest(t, path)
	ctx := context.Background()
	started := time.Now().Add(-2 * time.Hour)

	ok, err := st.StartRun(ctx, store.KindBluesky, "alice.bsky.social", started)
	if err != nil {
		t.Fatalf("start run: %v", err)
	}
	if err := st.FinishRun(ctx, ok.ID, store.RunResult{Items: 1234, Requests: 3, StopReason: "target_reached"}, started.Add(2*time.Second)); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	bad, _ := st.StartRun(ctx, store.KindYouTube, "UCmissing", started.Add(time.Hour))
	if err := st.FinishRun(ctx, bad.ID, store.RunResult{Err: errors.New("channel not found")}, started.Add(time.Hour)); err != nil {
		t.Fatalf("finish run: %v", err)
	}
	_ = st.Close()
}

func TestHistoryAction_Terminal(t *testing.T) {
	env := setupCLI(t, "youtube:\n  channels:\n    - channel_id: UCtest123\n")
	seedRuns(t, env.dbPath)

	out, err := captureStdout(t, func() error {
		return historyAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "alice.bsky.social")
	requireContains(t, out, "1,234")
	requireContains(t, out, "target_reached")
	requireContains(t, out, "2s")
	requireContains(t, out, "error: channel not found")
	requireContains(t, out, "hours ago")
	if strings.Index(out, "UCmissing") > strings.Index(out, "alice.bsky.social") {
		t.Error("newest run should be listed first")
	}
}

func TestHistoryAction_JSONAndKind(t *testing.T) {
	env := setupCLI(t, "youtube:\n  channels:\n    - channel_id: UCtest123\n")
	seedRuns(t, env.dbPath)
	historyFormat = "json"
	historyKind = store.KindBluesky

	out, err := captureStdout(t, func() error {
		return historyAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	var got struct {
		Runs []historyRun `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(got.Runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(got.Runs))
	}
	r := got.Runs[0]
	if r.Kind != "bluesky" || r.Items != 1234 || r.Requests != 3 || r.FinishedAt == nil {
		t.Errorf("run = %+v", r)
	}
}

func TestHistoryAction_Empty(t *testing.T) {
	setupCLI(t, "youtube:\n  channels:\n    - channel_id: UCtest123\n")

	out, err := captureStdout(t, func() error {
		return historyAction(testCommand(), nil)
	})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "No runs recorded yet.")

	historyFormat = "json"
	out, _ = captureStdout(t, func() error {
		return historyAction(testCommand(), nil)
	})
	requireContains(t, out, `"runs": []`)
}

func TestHistoryAction_UnknownFormat(t *testing.T) {
	setupCLI(t, "youtube:\n  channels:\n    - channel_id: UCtest123\n")
	historyFormat = "xml"

	if _, err := captureStdout(t, func() error {
		return historyAction(testCommand(), nil)
	}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestRunStatus(t *testing.T) {
	now := time.Now()
	tests := []struct {
		run  store.Run
		want string
	}{
		{store.Run{Error: "boom", FinishedAt: now}, "error: boom"},
		{store.Run{}, "unfinished"},
		{store.Run{FinishedAt: now}, "ok"},
	}
	for _, tt := range tests {
		if got := runStatus(tt.run); got != tt.want {
			t.Errorf("runStatus(%+v) = %q, want %q", tt.run, got, tt.want)
		}
	}
}

func TestPrintHistory_Unfinished(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, []store.Run{{Kind: "bluesky", Target: "alice.bsky.social", StartedAt: time.Now()}}, time.Now())
	requireContains(t, buf.String(), "unfinished")
}
