package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory naming.
	appName = "buildbpy"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644
)

// Default build root.
//
//	Linux:   $XDG_DATA_HOME/buildbpy or ~/.local/share/buildbpy
//	macOS:   ~/Library/Application Support/buildbpy
//	Windows: %LOCALAPPDATA%\buildbpy
func DefaultRoot() string {
	return filepath.Join(xdg.DataHome, appName)
}

// Default path to the pipeline configuration file.
func ConfigFile() string {
	return filepath.Join(xdg.ConfigHome, appName, "buildbpy.toml")
}

// BuildPaths holds the directories of one build root.
type BuildPaths struct {
	Root        string
	Repo        string
	Lib         string
	Bin         string
	Download    string
	Build       string
	WheelOutput string
	PythonAPI   string
}

// New returns the layout for root. buildDir is the platform's build
// directory name; sourceDir overrides the checkout location when non-empty.
// The library and build directories sit next to the checkout, where the
// make wrapper expects them.
func New(root, buildDir, sourceDir string) BuildPaths {
	repo := filepath.Join(root, "blender")
	if sourceDir != "" {
		repo = sourceDir
	}
	parent := filepath.Dir(repo)
	return BuildPaths{
		Root:        root,
		Repo:        repo,
		Lib:         filepath.Join(parent, "lib"),
		Bin:         filepath.Join(root, "blender-bin"),
		Download:    filepath.Join(root, "downloads"),
		Build:       filepath.Join(parent, buildDir),
		WheelOutput: filepath.Join(root, "dist"),
		PythonAPI:   filepath.Join(root, "python_api"),
	}
}

// LogDir returns where build phase output is saved.
func (p BuildPaths) LogDir() string {
	return filepath.Join(p.Root, "logs")
}

// StateFile returns the path of the build state record.
func (p BuildPaths) StateFile() string {
	return filepath.Join(p.Root, "state.yaml")
}

// Ensure creates the directories the pipeline writes into. The source
// checkout, library and build directories are created by their owners.
func (p BuildPaths) Ensure() error {
	for _, dir := range []string{p.Root, p.Bin, p.Download, p.WheelOutput, p.PythonAPI, p.LogDir()} {
		if err := os.MkdirAll(dir, DefaultDirMode); err != nil {
			return err
		}
	}
	return nil
}

// ClearLib removes the native library directory.
func (p BuildPaths) ClearLib() error {
	return os.RemoveAll(p.Lib)
}

// ClearBuild removes the build directory and its CMake cache.
func (p BuildPaths) ClearBuild() error {
	return os.RemoveAll(p.Build)
}
