package platform

import (
	"archive/tar"
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spachava753/buildbpy/internal/environment"
	"github.com/ulikunitz/xz"
)

type archiveKind string

const (
	archiveTarXz archiveKind = "tar.xz"
	archiveZip   archiveKind = "zip"
	archiveDMG   archiveKind = "dmg"
)

// Extract unpacks archive into binDir. The archive is unpacked into a
// staging directory next to binDir first; binDir's previous contents are
// replaced only once extraction succeeded.
func (p Profile) Extract(ctx context.Context, env environment.Environment, archive, binDir string) error {
	parent := filepath.Dir(binDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", parent, err)
	}

	staging, err := os.MkdirTemp(parent, ".extract-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	slog.Debug("extracting archive", "archive", archive, "kind", p.archive, "staging", staging)

	switch p.archive {
	case archiveTarXz:
		err = extractTarXz(archive, staging)
	case archiveZip:
		err = extractZip(archive, staging)
	case archiveDMG:
		err = extractDMG(ctx, &Hdiutil{Env: env}, archive, staging)
	default:
		err = fmt.Errorf("unsupported archive kind %q", p.archive)
	}
	if err != nil {
		return err
	}

	if err := os.RemoveAll(binDir); err != nil {
		return fmt.Errorf("clearing %s: %w", binDir, err)
	}
	if err := os.Rename(staging, binDir); err != nil {
		return fmt.Errorf("moving extracted files into %s: %w", binDir, err)
	}
	return nil
}

// safeJoin joins an archive member name onto dest, rejecting names that
// would land outside dest.
func safeJoin(dest, name string) (string, error) {
	target := filepath.Join(dest, filepath.FromSlash(name))
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the extraction directory", name)
	}
	return target, nil
}

// prepareTarget makes target safe to create. An existing symlink at target
// is removed so the new entry replaces it instead of writing through it.
func prepareTarget(dest, target string) error {
	if target == dest {
		return nil
	}
	if err := checkParents(dest, target); err != nil {
		return err
	}
	if info, err := os.Lstat(target); err == nil && info.Mode()&fs.ModeSymlink != 0 {
		return os.Remove(target)
	}
	return nil
}

// checkParents rejects paths that pass through a symlink below dest.
func checkParents(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	dir := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		dir = filepath.Join(dir, part)
		info, err := os.Lstat(dir)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("archive entry %s is below symlink %s", target, dir)
		}
	}
	return nil
}

// checkLink rejects symlink targets that are absolute or leave dest.
func checkLink(dest, target, link string) error {
	if filepath.IsAbs(link) || strings.HasPrefix(link, "/") {
		return fmt.Errorf("symlink %s points at absolute path %q", target, link)
	}
	resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(link))
	rel, err := filepath.Rel(dest, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("symlink %s -> %q escapes the extraction directory", target, link)
	}
	return nil
}

func extractTarXz(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	xzr, err := xz.NewReader(f)
	if err != nil {
		return fmt.Errorf("creating xz reader: %w", err)
	}
	return extractTar(tar.NewReader(xzr), dest)
}

func extractTar(tr *tar.Reader, dest string) error {
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}

		target, err := safeJoin(dest, hdr.Name)
		if err != nil {
			return err
		}
		if err := prepareTarget(dest, target); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr.FileInfo().Mode())); err != nil {
				return fmt.Errorf("creating dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr.FileInfo().Mode()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := checkLink(dest, target, hdr.Linkname); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("creating parent dir: %w", err)
			}
			if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("replacing %s: %w", target, err)
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return fmt.Errorf("creating symlink %s -> %s: %w", target, hdr.Linkname, err)
			}
		case tar.TypeLink:
			source, err := safeJoin(dest, hdr.Linkname)
			if err != nil {
				return err
			}
			if err := checkParents(dest, source); err != nil {
				return err
			}
			if err := os.Link(source, target); err != nil {
				return fmt.Errorf("creating hard link %s -> %s: %w", target, source, err)
			}
		default:
			slog.Debug("skipping tar entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}
}

func extractZip(archive, dest string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("opening zip: %w", err)
	}
	defer zr.Close()

	for _, zf := range zr.File {
		target, err := safeJoin(dest, zf.Name)
		if err != nil {
			return err
		}
		if err := prepareTarget(dest, target); err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("creating dir %s: %w", target, err)
			}
			continue
		}

		rc, err := zf.Open()
		if err != nil {
			return fmt.Errorf("opening %s in zip: %w", zf.Name, err)
		}
		err = writeFile(target, rc, zf.Mode())
		rc.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(target string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("creating parent dir: %w", err)
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return fmt.Errorf("writing file %s: %w", target, err)
	}
	return out.Close()
}

func dirMode(mode fs.FileMode) fs.FileMode {
	if mode.Perm() == 0 {
		return 0755
	}
	return mode.Perm() | 0700
}

// Mounter attaches and detaches disk images.
type Mounter interface {
	Attach(ctx context.Context, image, mountPoint string) error
	Detach(ctx context.Context, mountPoint string) error
}

// Hdiutil mounts disk images with macOS hdiutil.
type Hdiutil struct {
	Env environment.Environment
}

func (h *Hdiutil) Attach(ctx context.Context, image, mountPoint string) error {
	return environment.Run(ctx, h.Env, io.Discard, nil, environment.ExecOptions{},
		"hdiutil", "attach", "-nobrowse", "-readonly", "-mountpoint", mountPoint, image)
}

func (h *Hdiutil) Detach(ctx context.Context, mountPoint string) error {
	return environment.Run(ctx, h.Env, io.Discard, nil, environment.ExecOptions{},
		"hdiutil", "detach", mountPoint)
}

// extractDMG mounts image, copies its top-level entries except symlinks
// (the Applications shortcut) into dest and detaches on every path.
func extractDMG(ctx context.Context, m Mounter, image, dest string) (err error) {
	mountPoint, err := os.MkdirTemp("", "buildbpy-dmg-*")
	if err != nil {
		return fmt.Errorf("creating mount point: %w", err)
	}
	defer os.Remove(mountPoint)

	abs, err := filepath.Abs(image)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", image, err)
	}

	if err := m.Attach(ctx, abs, mountPoint); err != nil {
		return fmt.Errorf("mounting disk image: %w", err)
	}
	defer func() {
		// The detach must run even when ctx is already cancelled.
		if derr := m.Detach(context.WithoutCancel(ctx), mountPoint); derr != nil {
			err = errors.Join(err, fmt.Errorf("unmounting disk image: %w", derr))
		}
	}()

	entries, err := os.ReadDir(mountPoint)
	if err != nil {
		return fmt.Errorf("listing disk image: %w", err)
	}
	for _, e := range entries {
		if e.Type()&fs.ModeSymlink != 0 {
			continue
		}
		if err := copyTree(filepath.Join(mountPoint, e.Name()), filepath.Join(dest, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// copyTree copies src to dst, recreating symlinks below the top level.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case d.IsDir():
			return os.MkdirAll(target, dirMode(info.Mode()))
		default:
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			return writeFile(target, f, info.Mode())
		}
	})
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
