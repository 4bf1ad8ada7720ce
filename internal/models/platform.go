package models

// OSFamily is a host operating system family supported by the build.
type OSFamily string

const (
	OSLinux   OSFamily = "linux"
	OSWindows OSFamily = "windows"
	OSMacOS   OSFamily = "macos"
)

// PlatformDescriptor describes the build host. It is derived once at startup.
type PlatformDescriptor struct {
	OS               OSFamily
	Arch             string // Go architecture name, e.g. "amd64" or "arm64"
	ArchiveExtension string // "tar.xz", "zip" or "dmg"
}
