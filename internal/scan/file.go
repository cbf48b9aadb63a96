// Package scan tracks PST voltage recorder scans on a data product filesystem.
package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// File represents one data, weights, stats or control file of a scan.
type File struct {
	// Path is the absolute path of the file.
	Path string

	// DataProductPath is the root the file's relative path is computed from.
	DataProductPath string

	// FileNumber is the sequence number parsed from the file stem, or 0 when
	// the stem does not carry one.
	FileNumber int
}

// NewFile creates a File for path under the data product root.
func NewFile(path, dataProductPath string) File {
	return File{
		Path:            path,
		DataProductPath: dataProductPath,
		FileNumber:      fileNumber(path),
	}
}

// fileNumber parses the sequence number from a <timestamp>_<offset>_<NNNNNN>
// stem, returning 0 when the stem has a different shape.
func fileNumber(path string) int {
	stem := filepath.Base(path)
	stem = strings.TrimSuffix(stem, filepath.Ext(stem))

	parts := strings.Split(stem, "_")
	if len(parts) != 3 {
		return 0
	}
	n, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0
	}
	return n
}

// Exists reports whether the file exists.
func (f File) Exists() bool {
	_, err := os.Stat(f.Path)
	return err == nil
}

// Size returns the size of the file in bytes, or 0 when it does not exist.
func (f File) Size() int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Age returns the seconds since the file was last modified, or -1 when it
// does not exist.
func (f File) Age() float64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return -1
	}
	return time.Since(info.ModTime()).Seconds()
}

// ModTime returns the modification time of the file, or the zero time when it
// does not exist.
func (f File) ModTime() time.Time {
	info, err := os.Stat(f.Path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// RelativePath returns the path of the file relative to the data product root.
func (f File) RelativePath() string {
	rel, err := filepath.Rel(f.DataProductPath, f.Path)
	if err != nil {
		return f.Path
	}
	return rel
}

// Equal reports whether two files denote the same transferred content:
// same sequence number, size and relative path.
func (f File) Equal(other File) bool {
	return f.FileNumber == other.FileNumber &&
		f.Size() == other.Size() &&
		f.RelativePath() == other.RelativePath()
}

func (f File) String() string {
	return f.RelativePath()
}

// SortFiles orders files by ascending sequence number, then by relative path
// among files with equal sequence numbers (files without one count as 0).
func SortFiles(files []File) {
	sort.Slice(files, func(i, j int) bool {
		if files[i].FileNumber != files[j].FileNumber {
			return files[i].FileNumber < files[j].FileNumber
		}
		return files[i].RelativePath() < files[j].RelativePath()
	})
}
