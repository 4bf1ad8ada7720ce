package platform

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/spachava753/buildbpy/internal/models"
)

// Tokens are the platform-specific parts of a reference binary file name:
// blender-<minor><suffix>-<System><Arch><FileSuffix>.<Ext>.
type Tokens struct {
	System     string
	Arch       string
	Ext        string
	FileSuffix string
}

// Profile is the build behavior of one OS family. Profiles are plain data
// selected from a fixed table; Arch is bound to the host at lookup.
type Profile struct {
	OS   models.OSFamily
	Arch string

	buildDir    string
	wheelSubdir string

	// Reference binary naming, keyed by Go architecture.
	releaseSystem string
	dailySystem   string
	releaseArch   map[string]string
	dailyArch     map[string]string
	ext           string
	feedPlatform  string
	feedExt       string

	// Native library checkout; libToken is empty for platforms whose
	// libraries are fetched by the Blender update script.
	libToken func(arch string) string

	archive    archiveKind
	locate     func(binDir string) (string, error)
	directives []string
	command    func(repoDir, phase string) (string, []string, io.Reader)
}

var profiles = map[models.OSFamily]Profile{
	models.OSLinux: {
		OS:            models.OSLinux,
		buildDir:      "build_linux_bpy",
		wheelSubdir:   "bin",
		releaseSystem: "linux-",
		dailySystem:   "linux.",
		releaseArch:   map[string]string{"amd64": "x64"},
		dailyArch:     map[string]string{"amd64": "x86_64"},
		ext:           "tar.xz",
		feedPlatform:  "linux",
		feedExt:       "xz",
		libToken:      func(string) string { return "linux_x86_64_glibc_228" },
		archive:       archiveTarXz,
		locate:        globBinary("blender"),
		directives:    slices.Concat(gpuCUDA, audioLinux),
		command:       makeCommand,
	},
	models.OSWindows: {
		OS:            models.OSWindows,
		buildDir:      "build_windows_Bpy_x64_vc17_Release",
		wheelSubdir:   filepath.Join("bin", "Release"),
		releaseSystem: "windows-",
		dailySystem:   "windows.",
		releaseArch:   map[string]string{"amd64": "x64"},
		dailyArch:     map[string]string{"amd64": "amd64"},
		ext:           "zip",
		feedPlatform:  "windows",
		feedExt:       "zip",
		libToken:      func(string) string { return "win64_vc15" },
		archive:       archiveZip,
		locate:        globBinary("blender.exe"),
		directives:    slices.Concat(gpuCUDA, audioWindows),
		command:       makeBatCommand,
	},
	models.OSMacOS: {
		OS:            models.OSMacOS,
		buildDir:      "build_darwin_bpy",
		wheelSubdir:   "bin",
		releaseSystem: "macos-",
		dailySystem:   "darwin.",
		releaseArch:   map[string]string{"arm64": "arm64", "amd64": "x64"},
		dailyArch:     map[string]string{"arm64": "arm64", "amd64": "x86_64"},
		ext:           "dmg",
		feedPlatform:  "darwin",
		feedExt:       "dmg",
		libToken:      nil,
		archive:       archiveDMG,
		locate:        fixedBinary(filepath.Join("Blender.app", "Contents", "MacOS", "Blender")),
		directives:    slices.Concat(gpuMetal, audioMacOS),
		command:       makeCommand,
	},
}

// Host describes the machine the pipeline runs on.
func Host() (models.PlatformDescriptor, error) {
	return Describe(runtime.GOOS, runtime.GOARCH)
}

// Describe maps a Go OS/architecture pair onto a PlatformDescriptor.
func Describe(goos, goarch string) (models.PlatformDescriptor, error) {
	var family models.OSFamily
	switch goos {
	case "linux":
		family = models.OSLinux
	case "windows":
		family = models.OSWindows
	case "darwin":
		family = models.OSMacOS
	default:
		return models.PlatformDescriptor{}, fmt.Errorf("unsupported operating system %q", goos)
	}
	return models.PlatformDescriptor{OS: family, Arch: goarch, ArchiveExtension: profiles[family].ext}, nil
}

// Lookup returns the profile for a host. Architectures without published
// reference binaries are rejected.
func Lookup(desc models.PlatformDescriptor) (Profile, error) {
	p, ok := profiles[desc.OS]
	if !ok {
		return Profile{}, fmt.Errorf("no build profile for %q", desc.OS)
	}
	if _, ok := p.releaseArch[desc.Arch]; !ok {
		return Profile{}, fmt.Errorf("no %s reference builds for architecture %q", desc.OS, desc.Arch)
	}
	p.Arch = desc.Arch
	return p, nil
}

// BuildDirName returns the name of the build directory the Blender make
// wrapper writes to, next to the source checkout.
func (p Profile) BuildDirName() string {
	return p.buildDir
}

// WheelDirectory returns where the build leaves the bpy module for packaging.
func (p Profile) WheelDirectory(buildDir string) string {
	return filepath.Join(buildDir, p.wheelSubdir)
}

// DownloadTokens returns the file name tokens for the reference binary of
// the given release cycle.
func (p Profile) DownloadTokens(cycle models.ReleaseCycle) Tokens {
	if cycle.IsRelease() {
		return Tokens{System: p.releaseSystem, Arch: p.releaseArch[p.Arch], Ext: p.ext}
	}
	return Tokens{System: p.dailySystem, Arch: p.dailyArch[p.Arch], Ext: p.ext, FileSuffix: "-release"}
}

// FeedFilter selects this host's entries in the nightly feed.
func (p Profile) FeedFilter() models.FeedFilter {
	return models.FeedFilter{Platform: p.feedPlatform, Architecture: p.dailyArch[p.Arch], Extension: p.feedExt}
}

// LibDirectory returns the platform library directory under libRoot.
func (p Profile) LibDirectory(libRoot string) string {
	if p.libToken != nil {
		return filepath.Join(libRoot, p.libToken(p.Arch))
	}
	arch := p.releaseArch[p.Arch]
	return filepath.Join(libRoot, "macos_"+arch)
}

// LocateBinary finds the reference binary inside an extracted archive.
func (p Profile) LocateBinary(binDir string) (string, error) {
	return p.locate(binDir)
}

// Command returns the command line for a build phase ("update" or "bpy")
// and the stdin to feed it.
func (p Profile) Command(repoDir, phase string) (string, []string, io.Reader) {
	return p.command(repoDir, phase)
}

func makeCommand(repoDir, phase string) (string, []string, io.Reader) {
	return "make", []string{phase}, nil
}

// make.bat update asks for confirmation before touching the library checkout.
func makeBatCommand(repoDir, phase string) (string, []string, io.Reader) {
	var stdin io.Reader
	if phase == "update" {
		stdin = strings.NewReader("y\n")
	}
	return "cmd", []string{"/C", filepath.Join(repoDir, "make.bat"), phase}, stdin
}

func globBinary(name string) func(string) (string, error) {
	return func(binDir string) (string, error) {
		matches, err := filepath.Glob(filepath.Join(binDir, "blender-*", name))
		if err != nil {
			return "", err
		}
		if len(matches) == 0 {
			return "", fmt.Errorf("no %s found under %s", name, filepath.Join(binDir, "blender-*"))
		}
		return matches[0], nil
	}
}

func fixedBinary(rel string) func(string) (string, error) {
	return func(binDir string) (string, error) {
		path := filepath.Join(binDir, rel)
		if !fileExists(path) {
			return "", fmt.Errorf("no binary at %s", path)
		}
		return path, nil
	}
}
