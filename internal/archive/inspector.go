package archive

import (
	"fmt"
	"io"
	"strings"
)

// Report is an immutable snapshot of everything the inspector learned
// about a container. Consumers decide from it whether and how to extract.
type Report struct {
	Path             string
	ArchiveSize      int64
	CompressedSize   int64
	UncompressedSize int64
	FileCount        int
	Method           string
	Encrypted        bool
	RootFolder       string
	Valid            bool
	Problems         []string
	Members          []Member
	Bomb             BombCheck
}

// CompressionRatio reports the percentage of space saved by compression.
func (r *Report) CompressionRatio() float64 {
	if r.UncompressedSize == 0 {
		return 0
	}
	return float64(r.UncompressedSize-r.ArchiveSize) / float64(r.UncompressedSize) * 100
}

// Inspect opens the archive, enumerates members, verifies every member
// checksum and returns the aggregate report. It fails with ErrUnreadable
// when the container cannot be opened at all and with ErrCorrupt on the
// first member whose payload does not verify. Encrypted members are
// reported, not read.
func Inspect(path string) (*Report, error) {
	return InspectWithLimits(path, DefaultLimits())
}

// InspectWithLimits is Inspect with caller-chosen bomb-screen limits.
func InspectWithLimits(path string, limits Limits) (*Report, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	report := &Report{
		Path:        path,
		ArchiveSize: r.Size(),
		Members:     r.Members(),
		Valid:       true,
	}

	for _, m := range report.Members {
		report.CompressedSize += m.CompressedSize
		report.UncompressedSize += m.UncompressedSize
		if m.IsDir {
			continue
		}
		report.FileCount++
		if m.Encrypted {
			report.Encrypted = true
		}
		switch {
		case report.Method == "":
			report.Method = m.Method
		case report.Method != m.Method:
			report.Method = "mixed"
		}
	}

	if err := verify(r); err != nil {
		report.Valid = false
		report.Problems = append(report.Problems, err.Error())
		return report, err
	}

	report.RootFolder = DetectRootFolder(memberPaths(report.Members))
	report.Bomb = Screen(report.Members, report.ArchiveSize, limits)
	return report, nil
}

// verify streams every readable member to exercise the codec's CRC check.
func verify(r *Reader) error {
	for _, e := range r.Entries() {
		if e.IsDir || e.Encrypted {
			continue
		}
		rc, err := e.Open()
		if err != nil {
			return fmt.Errorf("%w: member %q: %v", ErrCorrupt, e.Path, err)
		}
		_, err = io.Copy(io.Discard, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("%w: member %q: %v", ErrCorrupt, e.Path, err)
		}
	}
	return nil
}

// DetectRootFolder reports the single directory every member path lives
// under, or "" when the paths do not share exactly one first segment.
func DetectRootFolder(paths []string) string {
	roots := map[string]struct{}{}
	root := ""
	for _, p := range paths {
		normalized := strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
		if normalized == "" {
			continue
		}
		first, _, _ := strings.Cut(normalized, "/")
		roots[first] = struct{}{}
		root = first
	}
	if len(roots) != 1 {
		return ""
	}
	for _, p := range paths {
		normalized := strings.Trim(strings.ReplaceAll(p, "\\", "/"), "/")
		if normalized == "" {
			continue
		}
		if normalized != root && !strings.HasPrefix(normalized, root+"/") {
			return ""
		}
	}
	return root
}

func memberPaths(members []Member) []string {
	out := make([]string, 0, len(members))
	for _, m := range members {
		out = append(out, m.Path)
	}
	return out
}
