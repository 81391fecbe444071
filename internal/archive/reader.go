package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"
)

var (
	ErrUnreadable = errors.New("archive unreadable")
	ErrCorrupt    = errors.New("archive corrupt")
)

// Member is one entry of an archive as stored in the central directory.
type Member struct {
	Path             string
	UncompressedSize int64
	CompressedSize   int64
	IsDir            bool
	Modified         time.Time
	CRC32            uint32
	Encrypted        bool
	Mode             fs.FileMode
	Method           string
}

// Entry couples a Member with access to its payload.
type Entry struct {
	Member
	file *zip.File
}

func (e Entry) Open() (io.ReadCloser, error) {
	return e.file.Open()
}

// Reader is a read-only view of a ZIP container. It never writes to disk.
type Reader struct {
	path    string
	size    int64
	zr      *zip.ReadCloser
	entries []Entry
}

// Open validates that path names a non-empty regular file holding a ZIP
// container and enumerates its members. All failures wrap ErrUnreadable.
func Open(path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrUnreadable, path)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrUnreadable, path)
	}
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreadable, path, err)
	}
	r := &Reader{path: path, size: info.Size(), zr: zr}
	r.entries = make([]Entry, 0, len(zr.File))
	for _, f := range zr.File {
		r.entries = append(r.entries, Entry{
			Member: Member{
				Path:             f.Name,
				UncompressedSize: int64(f.UncompressedSize64),
				CompressedSize:   int64(f.CompressedSize64),
				IsDir:            f.FileInfo().IsDir(),
				Modified:         f.Modified,
				CRC32:            f.CRC32,
				Encrypted:        f.Flags&0x1 != 0,
				Mode:             f.Mode(),
				Method:           methodName(f.Method),
			},
			file: f,
		})
	}
	return r, nil
}

func (r *Reader) Path() string { return r.path }

// Size is the on-disk size of the container file.
func (r *Reader) Size() int64 { return r.size }

func (r *Reader) Entries() []Entry { return r.entries }

func (r *Reader) Members() []Member {
	out := make([]Member, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Member)
	}
	return out
}

func (r *Reader) Close() error {
	return r.zr.Close()
}

// Depth counts the path segments of a member path, archive separators
// normalized.
func Depth(memberPath string) int {
	normalized := strings.Trim(strings.ReplaceAll(memberPath, "\\", "/"), "/")
	if normalized == "" {
		return 0
	}
	return strings.Count(normalized, "/") + 1
}

func methodName(method uint16) string {
	switch method {
	case zip.Store:
		return "stored"
	case zip.Deflate:
		return "deflate"
	case 12:
		return "bzip2"
	case 14:
		return "lzma"
	default:
		return "unknown"
	}
}
