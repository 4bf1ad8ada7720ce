package platform

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spachava753/buildbpy/internal/environment/fake"
	"github.com/ulikunitz/xz"
)

type tarEntry struct {
	name     string
	body     string
	typeflag byte
	link     string
	mode     int64
}

func writeTarXz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatal(err)
	}
	tw := tar.NewWriter(xw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Typeflag: e.typeflag, Linkname: e.link, Mode: e.mode, Size: int64(len(e.body))}
		if hdr.Mode == 0 {
			hdr.Mode = 0644
		}
		if e.typeflag != tar.TypeReg {
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if e.typeflag == tar.TypeReg {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := xw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestExtract_TarXz(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	dir := t.TempDir()
	archive := filepath.Join(dir, "blender.tar.xz")
	writeTarXz(t, archive, []tarEntry{
		{name: "blender-4.2.0-linux-x64/", typeflag: tar.TypeDir, mode: 0755},
		{name: "blender-4.2.0-linux-x64/blender", body: "#!/bin/sh\n", typeflag: tar.TypeReg, mode: 0755},
		{name: "blender-4.2.0-linux-x64/lib/libcycles.so.4.2", body: "elf", typeflag: tar.TypeReg},
		{name: "blender-4.2.0-linux-x64/lib/libcycles.so", typeflag: tar.TypeSymlink, link: "libcycles.so.4.2"},
	})

	bin := filepath.Join(dir, "blender-bin")
	if err := os.MkdirAll(bin, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "stale"), nil, 0644); err != nil {
		t.Fatal(err)
	}

	p := mustLookup(t, "linux", "amd64")
	if err := p.Extract(context.Background(), fake.New(), archive, bin); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	exe, err := p.LocateBinary(bin)
	if err != nil {
		t.Fatalf("LocateBinary: %v", err)
	}
	info, err := os.Stat(exe)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm()&0100 == 0 {
		t.Error("expected executable bit to be preserved")
	}

	link, err := os.Readlink(filepath.Join(bin, "blender-4.2.0-linux-x64", "lib", "libcycles.so"))
	if err != nil || link != "libcycles.so.4.2" {
		t.Errorf("expected symlink to libcycles.so.4.2, got %q (%v)", link, err)
	}

	if _, err := os.Stat(filepath.Join(bin, "stale")); !os.IsNotExist(err) {
		t.Error("expected previous contents to be replaced")
	}
	assertNoStaging(t, dir)
}

func TestExtract_FailureKeepsPreviousContents(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.tar.xz")
	writeTarXz(t, archive, []tarEntry{
		{name: "blender-4.2.0-linux-x64/blender", body: "ok", typeflag: tar.TypeReg},
		{name: "../../escape", body: "nope", typeflag: tar.TypeReg},
	})

	bin := filepath.Join(dir, "blender-bin")
	previous := filepath.Join(bin, "blender-4.1.0-linux-x64", "blender")
	if err := os.MkdirAll(filepath.Dir(previous), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(previous, []byte("old"), 0755); err != nil {
		t.Fatal(err)
	}

	err := mustLookup(t, "linux", "amd64").Extract(context.Background(), fake.New(), archive, bin)
	if err == nil {
		t.Fatal("expected traversal entry to be rejected")
	}
	if _, err := os.Stat(previous); err != nil {
		t.Error("previous binary directory must survive a failed extraction")
	}
	if _, err := os.Stat(filepath.Join(dir, "..", "escape")); err == nil {
		t.Error("entry escaped the extraction directory")
	}
	assertNoStaging(t, dir)
}

func TestExtract_SymlinkEscapes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	tests := []struct {
		name    string
		entries func(outside string) []tarEntry
	}{
		{
			name: "absolute link then write through it",
			entries: func(outside string) []tarEntry {
				return []tarEntry{
					{name: "blender-4.2.0-linux-x64/esc", typeflag: tar.TypeSymlink, link: outside},
					{name: "blender-4.2.0-linux-x64/esc/pwned", body: "x", typeflag: tar.TypeReg},
				}
			},
		},
		{
			name: "relative link leaving the archive",
			entries: func(outside string) []tarEntry {
				return []tarEntry{
					{name: "blender-4.2.0-linux-x64/esc", typeflag: tar.TypeSymlink, link: "../../../outside"},
				}
			},
		},
		{
			name: "write below an internal symlink",
			entries: func(outside string) []tarEntry {
				return []tarEntry{
					{name: "blender-4.2.0-linux-x64/lib/", typeflag: tar.TypeDir, mode: 0755},
					{name: "blender-4.2.0-linux-x64/alias", typeflag: tar.TypeSymlink, link: "lib"},
					{name: "blender-4.2.0-linux-x64/alias/libx.so", body: "x", typeflag: tar.TypeReg},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			outside := filepath.Join(dir, "outside")
			if err := os.MkdirAll(outside, 0755); err != nil {
				t.Fatal(err)
			}
			archive := filepath.Join(dir, "evil.tar.xz")
			writeTarXz(t, archive, tt.entries(outside))

			err := mustLookup(t, "linux", "amd64").Extract(context.Background(), fake.New(), archive, filepath.Join(dir, "blender-bin"))
			if err == nil {
				t.Fatal("expected the archive to be rejected")
			}
			if _, err := os.Stat(filepath.Join(outside, "pwned")); err == nil {
				t.Error("entry was written outside the extraction directory")
			}
			assertNoStaging(t, dir)
		})
	}
}

func TestExtract_ReplacesSymlinkWithFile(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	dir := t.TempDir()
	archive := filepath.Join(dir, "blender.tar.xz")
	writeTarXz(t, archive, []tarEntry{
		{name: "blender-4.2.0-linux-x64/readme.txt", body: "docs", typeflag: tar.TypeReg},
		{name: "blender-4.2.0-linux-x64/blender", typeflag: tar.TypeSymlink, link: "readme.txt"},
		{name: "blender-4.2.0-linux-x64/blender", body: "#!/bin/sh\n", typeflag: tar.TypeReg, mode: 0755},
	})

	bin := filepath.Join(dir, "blender-bin")
	if err := mustLookup(t, "linux", "amd64").Extract(context.Background(), fake.New(), archive, bin); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(bin, "blender-4.2.0-linux-x64", "readme.txt"))
	if err != nil || string(data) != "docs" {
		t.Errorf("later entry wrote through the symlink: %q (%v)", data, err)
	}
}

func TestExtract_CorruptArchive(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "truncated.tar.xz")
	if err := os.WriteFile(archive, []byte("not xz"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := mustLookup(t, "linux", "amd64").Extract(context.Background(), fake.New(), archive, filepath.Join(dir, "bin")); err == nil {
		t.Error("expected error for corrupt archive")
	}
}

func TestExtract_Zip(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "blender.zip")

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"blender-4.2.0-windows-x64/blender.exe":         "MZ",
		"blender-4.2.0-windows-x64/4.2/python/bin/x.py": "print()",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(archive, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	bin := filepath.Join(dir, "blender-bin")
	p := mustLookup(t, "windows", "amd64")
	if err := p.Extract(context.Background(), fake.New(), archive, bin); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	exe, err := p.LocateBinary(bin)
	if err != nil {
		t.Fatalf("LocateBinary: %v", err)
	}
	if data, _ := os.ReadFile(exe); string(data) != "MZ" {
		t.Errorf("unexpected blender.exe contents %q", data)
	}
}

// fakeMounter populates the mount point from a source tree on Attach.
type fakeMounter struct {
	source   string
	attachFn func(mountPoint string) error
	attached []string
	detached []string
}

func (m *fakeMounter) Attach(ctx context.Context, image, mountPoint string) error {
	m.attached = append(m.attached, mountPoint)
	if m.attachFn != nil {
		return m.attachFn(mountPoint)
	}
	return copyTree(m.source, mountPoint)
}

func (m *fakeMounter) Detach(ctx context.Context, mountPoint string) error {
	m.detached = append(m.detached, mountPoint)
	return os.RemoveAll(mountPoint)
}

func TestExtractDMG(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	src := t.TempDir()
	app := filepath.Join(src, "Blender.app", "Contents", "MacOS", "Blender")
	if err := os.MkdirAll(filepath.Dir(app), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(app, []byte("mach-o"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("/Applications", filepath.Join(src, "Applications")); err != nil {
		t.Fatal(err)
	}

	dest := t.TempDir()
	m := &fakeMounter{source: src}
	if err := extractDMG(context.Background(), m, filepath.Join(t.TempDir(), "blender.dmg"), dest); err != nil {
		t.Fatalf("extractDMG: %v", err)
	}

	if len(m.detached) != 1 || m.detached[0] != m.attached[0] {
		t.Errorf("expected the mount point to be detached once, got %v", m.detached)
	}
	if _, err := mustLookup(t, "darwin", "arm64").LocateBinary(dest); err != nil {
		t.Errorf("LocateBinary: %v", err)
	}
	if _, err := os.Lstat(filepath.Join(dest, "Applications")); !os.IsNotExist(err) {
		t.Error("top-level symlinks must not be copied")
	}
}

func TestExtractDMG_DetachesOnCopyFailure(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "Blender.app"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	// A regular file where the destination directory should be.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0644); err != nil {
		t.Fatal(err)
	}

	m := &fakeMounter{source: src}
	err := extractDMG(context.Background(), m, "blender.dmg", filepath.Join(blocker, "dest"))
	if err == nil {
		t.Fatal("expected copy failure")
	}
	if len(m.detached) != 1 {
		t.Errorf("expected detach after failure, got %d detaches", len(m.detached))
	}
}

func TestExtractDMG_AttachFailure(t *testing.T) {
	m := &fakeMounter{attachFn: func(string) error { return errors.New("hdiutil: attach failed") }}
	if err := extractDMG(context.Background(), m, "blender.dmg", t.TempDir()); err == nil {
		t.Fatal("expected attach failure")
	}
	if len(m.detached) != 0 {
		t.Error("nothing to detach after a failed attach")
	}
}

func TestHdiutil(t *testing.T) {
	env := fake.New()
	h := &Hdiutil{Env: env}
	ctx := context.Background()
	if err := h.Attach(ctx, "/d/blender.dmg", "/tmp/mp"); err != nil {
		t.Fatal(err)
	}
	if err := h.Detach(ctx, "/tmp/mp"); err != nil {
		t.Fatal(err)
	}
	lines := env.Lines()
	if len(lines) != 2 ||
		lines[0] != "hdiutil attach -nobrowse -readonly -mountpoint /tmp/mp /d/blender.dmg" ||
		lines[1] != "hdiutil detach /tmp/mp" {
		t.Errorf("unexpected commands %v", lines)
	}
}

func assertNoStaging(t *testing.T, dir string) {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(dir, ".extract-*"))
	if len(matches) > 0 {
		t.Errorf("staging directories left behind: %v", matches)
	}
}
