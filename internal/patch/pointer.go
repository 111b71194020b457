package patch

import (
	"fmt"
	"strconv"
	"strings"
)

// ParsePointer splits an RFC 6901 JSON pointer into unescaped tokens.
// The empty pointer addresses the whole document and yields no tokens.
func ParsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: %q must start with '/'", ErrInvalidPointer, path)
	}
	raw := strings.Split(path[1:], "/")
	tokens := make([]string, len(raw))
	for i, tok := range raw {
		if err := checkEscapes(tok); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidPointer, path, err)
		}
		tokens[i] = strings.ReplaceAll(strings.ReplaceAll(tok, "~1", "/"), "~0", "~")
	}
	return tokens, nil
}

func checkEscapes(tok string) error {
	for i := 0; i < len(tok); i++ {
		if tok[i] != '~' {
			continue
		}
		if i+1 >= len(tok) || (tok[i+1] != '0' && tok[i+1] != '1') {
			return fmt.Errorf("bad escape at offset %d", i)
		}
	}
	return nil
}

// arrayIndex parses an array index token. "-" is accepted only when
// allowEnd is set and resolves to n, the position after the last element.
func arrayIndex(tok string, n int, allowEnd bool) (int, error) {
	if tok == "-" {
		if allowEnd {
			return n, nil
		}
		return 0, fmt.Errorf("%w: '-' is only valid for add", ErrIndexOutOfRange)
	}
	if tok == "" || (len(tok) > 1 && tok[0] == '0') {
		return 0, fmt.Errorf("%w: %q is not an array index", ErrInvalidPointer, tok)
	}
	idx, err := strconv.Atoi(tok)
	if err != nil || idx < 0 {
		return 0, fmt.Errorf("%w: %q is not an array index", ErrInvalidPointer, tok)
	}
	limit := n - 1
	if allowEnd {
		limit = n
	}
	if idx > limit {
		return 0, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, idx, n)
	}
	return idx, nil
}

// overlaps reports whether a and b address the same subtree, i.e. one is a
// segment-wise prefix of the other. Segments compare case-insensitively, the
// way encoding/json matches member names to struct fields.
func overlaps(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
