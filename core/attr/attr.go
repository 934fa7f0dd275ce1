// Package attr implements dotted-path lookup into the nested attribute
// trees returned by the vehicle API.
package attr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKeyNotFound is returned when a path segment is absent from the tree.
var ErrKeyNotFound = errors.New("attribute key not found")

// Tree is the loosely typed attribute mapping owned by the vehicle state
// collaborator. Values are scalars, []any lists or nested Trees
// (map[string]any after JSON decoding).
type Tree = map[string]any

// Resolve walks path ("a.b.c") through src and returns the value at the
// end of the walk. An empty path returns src unchanged. The walk fails
// with ErrKeyNotFound on the first missing segment, or when an
// intermediate segment lands on a non-mapping value.
func Resolve(src Tree, path string) (any, error) {
	if path == "" {
		return src, nil
	}
	var cur any = src
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("segment %q: not a mapping: %w", seg, ErrKeyNotFound)
		}
		cur, ok = m[seg]
		if !ok {
			return nil, fmt.Errorf("segment %q: %w", seg, ErrKeyNotFound)
		}
	}
	return cur, nil
}

// IsResolvable reports whether Resolve would succeed for path. A key
// holding an explicit null still resolves; only missing keys do not.
func IsResolvable(src Tree, path string) bool {
	_, err := Resolve(src, path)
	return err == nil
}
