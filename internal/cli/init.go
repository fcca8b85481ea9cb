package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/sitefetch/internal/config"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example sitefetch.yaml",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s. Set %s in sitefetch.yaml and export %s and %s.\n",
			configDir, "bluesky.handle", config.DefaultUsernameEnv, config.DefaultAppPasswordEnv)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# sitefetch configuration

bluesky:
  handle: ` + config.PlaceholderHandle + `
  max_posts: 10
  enable_pagination: true
  page_size_limit: 100
  max_requests: 10
  max_embed_depth: 3
  filter: posts_no_replies
  pds: https://bsky.social
  username_env: BLUESKY_USERNAME
  app_password_env: BLUESKY_APP_PASSWORD
  output: data/bluesky.json

youtube:
  api_key_env: YOUTUBE_API_KEY
  max_results: 50
  stale_upcoming_days: 7
  channels: []
  # - channel_id: UCxxxxxxxxxxxxxxxxxxxxxx
  #   name: My Channel

storage:
  path: .sitefetch/sitefetch.db
  retain_days: 30

privacy:
  redact:
    enabled: false
    patterns: []
`
