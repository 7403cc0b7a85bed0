// Package horosafe provides the safety primitives used around uploaded
// files: path guards, identifier checks and bounded I/O.
package horosafe

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrPathTraversal is returned when a user-supplied path escapes its base.
var ErrPathTraversal = errors.New("horosafe: path traversal detected")

// ErrUnsafePath is returned when a path carries shell metacharacters.
var ErrUnsafePath = errors.New("horosafe: path contains unsafe characters")

// ErrTooLarge is returned when a bounded read or copy exceeds its limit.
var ErrTooLarge = errors.New("horosafe: input exceeds size limit")

// unsafePathTokens are rejected anywhere in a path.
var unsafePathTokens = []string{"..", "~", "$", "`", "|", ";", "&"}

// CheckPath rejects paths containing traversal or shell metacharacters.
func CheckPath(path string) error {
	for _, tok := range unsafePathTokens {
		if strings.Contains(path, tok) {
			if tok == ".." {
				return ErrPathTraversal
			}
			return fmt.Errorf("%w: %q", ErrUnsafePath, tok)
		}
	}
	return nil
}

// BaseName reduces a client-supplied file name to its final element, with
// both slash styles treated as separators. Returns "" for names that are
// empty or only dots once reduced.
func BaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(name)
	if strings.Trim(name, ".") == "" {
		return ""
	}
	return name
}

// ValidateIdentifier rejects identifiers that contain characters unsuitable
// for file names or URL path segments. Allows alphanumeric, underscore,
// hyphen and dot.
func ValidateIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("horosafe: identifier must not be empty")
	}
	if len(s) > 256 {
		return fmt.Errorf("horosafe: identifier too long (max 256)")
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return fmt.Errorf("horosafe: invalid character %q in identifier", r)
		}
	}
	return nil
}

// LimitedReadAll reads at most maxBytes from r.
func LimitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return data, nil
}

// LimitedCopy copies at most maxBytes from src to dst and returns the
// number of bytes written. One byte past the limit fails with ErrTooLarge.
func LimitedCopy(dst io.Writer, src io.Reader, maxBytes int64) (int64, error) {
	n, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	if err != nil {
		return n, err
	}
	if n > maxBytes {
		return n, fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes)
	}
	return n, nil
}

func isIdentChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') || r == '_' || r == '-' || r == '.'
}
