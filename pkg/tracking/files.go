package tracking

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	dsStoreFile       = ".DS_Store" // macOS metadata file name
	appleDoublePrefix = "._"        // AppleDouble resource fork prefix
)

// skipEntry reports whether a file is editor or OS metadata.
func skipEntry(name string) bool {
	return strings.HasPrefix(name, appleDoublePrefix) || name == dsStoreFile
}

// copyPath copies a file or a directory tree from src to dst.
func copyPath(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(dst), dirMode); err != nil {
			return err
		}
		return copyFile(src, dst)
	}
	return copyDir(src, dst)
}

// copyDir recursively copies the directory tree from src to dst,
// skipping any files or directories whose names start with "._"
// or are exactly ".DS_Store".
func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if skipEntry(info.Name()) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if info.IsDir() {
			return os.MkdirAll(target, dirMode)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
