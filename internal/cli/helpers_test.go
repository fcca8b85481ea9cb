package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/sitefetch/internal/store"
	"github.com/spf13/cobra"
)

type cliEnv struct {
	configDir string
	siteDir   string
	dbPath    string
}

// setupCLI points the command globals at a temp tree and restores them when
// the test ends. An empty body skips writing sitefetch.yaml.
func setupCLI(t *testing.T, body string) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{
		configDir: filepath.Join(dir, "config"),
		siteDir:   filepath.Join(dir, "site"),
		dbPath:    filepath.Join(dir, "archive", "sitefetch.db"),
	}
	for _, d := range []string{env.configDir, env.siteDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if body != "" {
		content := body + "\nstorage:\n  path: " + env.dbPath + "\n"
		if err := os.WriteFile(filepath.Join(env.configDir, "sitefetch.yaml"), []byte(content), 0o644); err != nil {
			t.Fatalf("write config: %v", err)
		}
	}

	oldConfigDir, oldSiteDir, oldLogLevel := configDir, siteDir, logLevel
	oldLimit, oldNoPagination := blueskyLimit, blueskyNoPagination
	oldHistoryLimit, oldHistoryKind, oldHistoryFormat := historyLimit, historyKind, historyFormat
	oldBlueskySource, oldYouTubeSource := newBlueskySource, newYouTubeSource
	oldEvery, oldRunOnce := runEvery, runOnceAction
	t.Cleanup(func() {
		configDir, siteDir, logLevel = oldConfigDir, oldSiteDir, oldLogLevel
		blueskyLimit, blueskyNoPagination = oldLimit, oldNoPagination
		historyLimit, historyKind, historyFormat = oldHistoryLimit, oldHistoryKind, oldHistoryFormat
		newBlueskySource, newYouTubeSource = oldBlueskySource, oldYouTubeSource
		runEvery, runOnceAction = oldEvery, oldRunOnce
	})

	configDir = env.configDir
	siteDir = env.siteDir
	logLevel = "panic"
	blueskyLimit = 0
	blueskyNoPagination = false
	historyLimit = 20
	historyKind = ""
	historyFormat = "terminal"
	runEvery = ""
	return env
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func openStoreForTest(t *testing.T, path string) *store.Store {
	t.Helper()

	st, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
