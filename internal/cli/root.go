package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/spachava753/buildbpy/internal"
	"github.com/spachava753/buildbpy/internal/config"
	"github.com/spachava753/buildbpy/internal/models"
	"github.com/spachava753/buildbpy/internal/paths"
	"github.com/spachava753/buildbpy/internal/pipeline"
)

// Represents the root command for buildbpy.
var RootCmd struct {
	Quiet   bool       `short:"q" help:"Suppress informational output."`
	Verbose bool       `short:"v" help:"Include source locations in log output."`
	Debug   bool       `short:"d" help:"Enable debug output."`
	Config  string     `short:"c" type:"path" help:"Path to buildbpy.toml." placeholder:"FILE"`
	Root    string     `type:"path" help:"Build root directory." placeholder:"DIR"`
	Build   BuildCmd   `cmd:"" help:"Build the bpy wheel for a Blender version."`
	Check   CheckCmd   `cmd:"" help:"Check upstream for a new tag or main commit."`
	Index   IndexCmd   `cmd:"" help:"Regenerate the package index from published releases."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Builds Blender as a Python module (bpy) and publishes the wheel."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
func configureLogger() {
	level := slog.LevelInfo
	if RootCmd.Debug {
		level = slog.LevelDebug
	} else if RootCmd.Quiet {
		level = slog.LevelWarn
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: RootCmd.Verbose,
	})
	slog.SetDefault(slog.New(handler))
}

// Returns the configuration selected by --config, or the default location.
func loadConfig() (models.Config, error) {
	path := RootCmd.Config
	if path == "" {
		path = paths.ConfigFile()
	}
	slog.Debug("loading config", "path", path)
	return config.LoadConfig(path)
}

// Returns a pipeline for the host rooted at --root.
func newPipeline(sourceDir string) (*pipeline.Pipeline, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return pipeline.New(cfg, pipeline.Options{
		Root:      RootCmd.Root,
		SourceDir: sourceDir,
		Token:     config.Token(),
	})
}
