// Package enums holds the closed string sets mirrored by Postgres enum types.
package enums

import (
	"fmt"
	"slices"
)

type closedSet[T ~string] []T

func (s closedSet[T]) has(v T) bool { return slices.Contains(s, v) }

func (s closedSet[T]) parse(kind, raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", kind, raw)
}

func (s closedSet[T]) values() []T { return slices.Clone(s) }
