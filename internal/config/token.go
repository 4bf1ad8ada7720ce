package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// TokenEnv is the environment variable holding the GitHub API token.
const TokenEnv = "GITHUB_TOKEN"

// LoadEnv loads KEY=VALUE pairs from the given dotenv files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Token returns the GitHub API token, or "" when none is configured.
func Token() string {
	return os.Getenv(TokenEnv)
}
