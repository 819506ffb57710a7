package download

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	FilenameFallback = "download.bin"

	maxFilenameLength  = 200
	maxCollisionSuffix = 10_000
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)

// SafeFilename derives a filesystem-safe base name from the last path segment
// of the URL. Query string and fragment never contribute to the name, and the
// segment is used as written: nothing is decoded or re-escaped.
func SafeFilename(rawURL string) string {
	name := lastSegment(rawURL)
	if name == "" || name == "." || name == ".." {
		name = FilenameFallback
	}

	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(name) > maxFilenameLength {
		name = name[:maxFilenameLength]
	}

	return name
}

// lastSegment returns what follows the final "/" of the URL path, or "" when
// the path is empty or ends in a slash.
func lastSegment(rawURL string) string {
	p := rawURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	if i := strings.Index(p, "://"); i >= 0 {
		p = p[i+len("://"):]
		slash := strings.IndexByte(p, '/')
		if slash < 0 {
			return ""
		}
		p = p[slash:]
	}

	return p[strings.LastIndexByte(p, '/')+1:]
}

// UniquePath returns outDir/name if nothing exists there yet, otherwise the
// first free outDir/{stem}__{i}{suffix}. It only looks; createUnique claims.
func UniquePath(outDir, name string) (string, error) {
	return probeCandidates(outDir, name, func(candidate string) (bool, error) {
		_, err := os.Lstat(candidate)
		return errors.Is(err, fs.ErrNotExist), nil
	})
}

// createUnique walks the same candidates as UniquePath but claims each one
// with O_EXCL, so two workers never end up writing the same file.
func createUnique(outDir, name string) (*os.File, error) {
	var f *os.File

	_, err := probeCandidates(outDir, name, func(candidate string) (bool, error) {
		var err error
		f, err = os.OpenFile(candidate, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, fs.ErrExist):
			return false, nil
		default:
			return false, &FilesystemError{Path: candidate, Err: err}
		}
	})
	if err != nil {
		return nil, err
	}

	return f, nil
}

// probeCandidates offers each candidate path in order to take until one is
// accepted or take fails.
func probeCandidates(outDir, name string, take func(candidate string) (bool, error)) (string, error) {
	for i := 0; i < maxCollisionSuffix; i++ {
		candidate := candidatePath(outDir, name, i)

		ok, err := take(candidate)
		if err != nil {
			return "", err
		}
		if ok {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%s: %w", filepath.Join(outDir, name), ErrCollisionExhausted)
}

// candidatePath returns the i-th probe for name; probe 0 is the name itself.
func candidatePath(outDir, name string, i int) string {
	if i == 0 {
		return filepath.Join(outDir, name)
	}

	suffix := filepath.Ext(name)
	if suffix == name {
		// dotfiles like ".env" have no suffix
		suffix = ""
	}
	stem := strings.TrimSuffix(name, suffix)

	return filepath.Join(outDir, fmt.Sprintf("%s__%d%s", stem, i, suffix))
}
