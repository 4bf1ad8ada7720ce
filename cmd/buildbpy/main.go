package main

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spachava753/buildbpy/internal"
	"github.com/spachava753/buildbpy/internal/cli"
	"github.com/spachava753/buildbpy/internal/config"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/paths"
)

// The entry point for buildbpy.
//
// Loads credentials from .env files, runs the selected command and exits
// with a code that identifies the failing stage.
func main() {
	slog.Debug("build", "version", internal.VersionString())

	envFiles := []string{".env", filepath.Join(filepath.Dir(paths.ConfigFile()), ".env")}
	if err := config.LoadEnv(envFiles...); err != nil {
		slog.Error("loading environment", "error", err)
		os.Exit(models.ExitConfig)
	}

	if err := cli.Execute(); err != nil {
		slog.Error(err.Error(), "kind", models.KindOf(err))
		os.Exit(models.ExitCode(err))
	}
}
