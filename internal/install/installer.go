package install

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mmcdole/romdl/internal/domain"
	"github.com/spf13/afero"
)

// Installer moves downloaded items from staging into destination folders.
type Installer struct {
	fs     afero.Fs
	logger *slog.Logger
}

// New creates an installer operating on fs.
func New(fs afero.Fs, logger *slog.Logger) *Installer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{fs: fs, logger: logger}
}

// Fs returns the filesystem the installer operates on.
func (i *Installer) Fs() afero.Fs {
	return i.fs
}

// IsArchive reports whether name is a zip archive.
func IsArchive(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// Extract unpacks the zip at archivePath into stagingDir. Entries that would
// land outside stagingDir are rejected.
func (i *Installer) Extract(archivePath, stagingDir string) error {
	f, err := i.fs.Open(archivePath)
	if err != nil {
		return &domain.InstallError{Path: archivePath, Op: "open", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &domain.InstallError{Path: archivePath, Op: "stat", Err: err}
	}

	zr, err := zip.NewReader(f, info.Size())
	if errors.Is(err, zip.ErrInsecurePath) {
		return &domain.InstallError{Path: archivePath, Op: "extract", Err: fmt.Errorf("%w: %v", domain.ErrUnsafeArchivePath, err)}
	}
	if err != nil {
		return &domain.InstallError{Path: archivePath, Op: "read archive", Err: err}
	}

	root := filepath.Clean(stagingDir)
	for _, entry := range zr.File {
		target, err := safeJoin(root, entry.Name)
		if err != nil {
			return &domain.InstallError{Path: entry.Name, Op: "extract", Err: err}
		}

		if entry.FileInfo().IsDir() {
			if err := i.fs.MkdirAll(target, 0755); err != nil {
				return &domain.InstallError{Path: target, Op: "mkdir", Err: err}
			}
			continue
		}

		if err := i.extractFile(entry, target); err != nil {
			return &domain.InstallError{Path: target, Op: "extract", Err: err}
		}
	}

	i.logger.Debug("extracted archive", "archive", archivePath, "entries", len(zr.File))
	return nil
}

func (i *Installer) extractFile(entry *zip.File, target string) error {
	if err := i.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := i.fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsafeArchivePath, name)
	}
	target := filepath.Join(root, name)
	if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", domain.ErrUnsafeArchivePath, name)
	}
	return target, nil
}

// Relocate moves every top-level file in stagingDir whose name carries one of
// exts into destDir, replacing files of the same name. It returns the names
// of the moved files.
func (i *Installer) Relocate(stagingDir, destDir string, exts []string) ([]string, error) {
	entries, err := afero.ReadDir(i.fs, stagingDir)
	if err != nil {
		return nil, &domain.InstallError{Path: stagingDir, Op: "scan", Err: err}
	}

	if err := i.fs.MkdirAll(destDir, 0755); err != nil {
		return nil, &domain.InstallError{Path: destDir, Op: "mkdir", Err: err}
	}

	var moved []string
	for _, entry := range entries {
		if entry.IsDir() || !domain.HasExtension(entry.Name(), exts) {
			continue
		}

		src := filepath.Join(stagingDir, entry.Name())
		dst := filepath.Join(destDir, entry.Name())
		if err := i.move(src, dst); err != nil {
			return moved, &domain.InstallError{Path: dst, Op: "relocate", Err: err}
		}
		moved = append(moved, entry.Name())
	}

	i.logger.Debug("relocated files", "dest", destDir, "count", len(moved))
	return moved, nil
}

// move replaces dst with src. An existing dst is only replaced once the new
// content is complete, so a failed move leaves it untouched.
func (i *Installer) move(src, dst string) error {
	if err := i.fs.Rename(src, dst); err == nil {
		return nil
	}

	// Rename fails across devices. Copy next to dst, then swap it in.
	tmp := dst + ".part"
	if err := i.copyFile(src, tmp); err != nil {
		i.fs.Remove(tmp)
		return err
	}
	if err := i.fs.Rename(tmp, dst); err != nil {
		i.fs.Remove(tmp)
		return err
	}
	return i.fs.Remove(src)
}

func (i *Installer) copyFile(src, dst string) error {
	in, err := i.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := i.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Purge removes everything inside stagingDir, keeping the directory itself.
func (i *Installer) Purge(stagingDir string) error {
	entries, err := afero.ReadDir(i.fs, stagingDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &domain.InstallError{Path: stagingDir, Op: "purge", Err: err}
	}

	var errs []error
	for _, entry := range entries {
		if err := i.fs.RemoveAll(filepath.Join(stagingDir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &domain.InstallError{Path: stagingDir, Op: "purge", Err: errors.Join(errs...)}
	}
	return nil
}
