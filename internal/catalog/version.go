package catalog

import (
	"fmt"
	"strconv"
)

// versionKey is the natural ordering key of a directory name: the integer
// value of every maximal run of digits, most significant first.
type versionKey struct {
	name  string
	parts []uint64
}

func parseVersionKey(name string) (versionKey, error) {
	k := versionKey{name: name}
	for i := 0; i < len(name); {
		if !isDigit(name[i]) {
			i++
			continue
		}
		j := i
		for j < len(name) && isDigit(name[j]) {
			j++
		}
		n, err := strconv.ParseUint(name[i:j], 10, 64)
		if err != nil {
			return versionKey{}, fmt.Errorf("directory %q: version component %q: %w", name, name[i:j], err)
		}
		k.parts = append(k.parts, n)
		i = j
	}
	return k, nil
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// compareVersionKeys orders version-like names numerically component by
// component. A missing trailing component sorts before a present one, so a
// name without digits sorts before every name with digits. Ties fall back to
// comparing the names as strings.
func compareVersionKeys(a, b versionKey) int {
	for i := 0; i < len(a.parts) && i < len(b.parts); i++ {
		switch {
		case a.parts[i] < b.parts[i]:
			return -1
		case a.parts[i] > b.parts[i]:
			return 1
		}
	}
	switch {
	case len(a.parts) < len(b.parts):
		return -1
	case len(a.parts) > len(b.parts):
		return 1
	case a.name < b.name:
		return -1
	case a.name > b.name:
		return 1
	}
	return 0
}

// CompareVersions compares two directory names in natural version order.
func CompareVersions(a, b string) (int, error) {
	ka, err := parseVersionKey(a)
	if err != nil {
		return 0, err
	}
	kb, err := parseVersionKey(b)
	if err != nil {
		return 0, err
	}
	return compareVersionKeys(ka, kb), nil
}
