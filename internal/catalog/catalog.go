package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/migrant/internal/change"
)

// ErrHashRequired is returned when the catalog holds apply_on_change files
// but no hash service is configured to detect their content changes.
var ErrHashRequired = errors.New("apply_on_change files require a hash algorithm (set hash.algorithm)")

// Direction selects which change types a scan returns and in which order.
type Direction int

const (
	// Apply returns apply, apply_always and apply_on_change files in ascending order.
	Apply Direction = iota
	// Revert returns revert files in descending order.
	Revert
)

func (d Direction) types() []change.Type {
	if d == Revert {
		return change.RevertTypes
	}
	return change.ApplyTypes
}

// Options controls a catalog scan.
type Options struct {
	Root        string
	Environment string
	Direction   Direction

	// Filter, when set, keeps only files whose root-relative path matches.
	Filter *regexp.Regexp

	// HashingEnabled reports whether a hash service is available. Scans that
	// find apply_on_change files fail with ErrHashRequired when it is false.
	HashingEnabled bool

	Logger *slog.Logger
}

// Scan walks the catalog root and returns the matching change files in
// execution order.
func Scan(opts Options) ([]change.File, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve catalog root %q: %w", opts.Root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("catalog root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("catalog root %s is not a directory", root)
	}

	dirs, err := visitOrder(root)
	if err != nil {
		return nil, err
	}

	wanted := opts.Direction.types()
	var result []change.File
	hasOnChange := false

	if opts.Direction == Revert {
		slices.Reverse(dirs)
	}

	for _, rel := range dirs {
		files, err := scanDir(root, rel, opts, wanted)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if f.ID().Type == change.TypeApplyOnChange {
				hasOnChange = true
			}
		}
		result = append(result, files...)
	}

	if hasOnChange && !opts.HashingEnabled {
		return nil, ErrHashRequired
	}

	logger.Debug("catalog scanned",
		"root", root,
		"direction", opts.Direction,
		"environment", opts.Environment,
		"files", len(result),
	)
	return result, nil
}

// visitOrder returns every directory under root, relative to it, in
// breadth-first natural version order. The root itself is "".
func visitOrder(root string) ([]string, error) {
	order := []string{""}
	for i := 0; i < len(order); i++ {
		subdirs, err := subdirectories(filepath.Join(root, filepath.FromSlash(order[i])))
		if err != nil {
			return nil, err
		}
		for _, name := range subdirs {
			order = append(order, path.Join(order[i], name))
		}
	}
	return order, nil
}

func subdirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog directory: %w", err)
	}

	var keys []versionKey
	for _, e := range entries {
		if hidden(e.Name()) {
			continue
		}
		isDir, err := isDirectory(dir, e)
		if err != nil {
			return nil, err
		}
		if !isDir {
			continue
		}
		k, err := parseVersionKey(e.Name())
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}

	sort.SliceStable(keys, func(i, j int) bool {
		return compareVersionKeys(keys[i], keys[j]) < 0
	})

	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.name
	}
	return names, nil
}

type orderedFile struct {
	file  change.File
	order int64
}

func scanDir(root, rel string, opts Options, wanted []change.Type) ([]change.File, error) {
	dir := filepath.Join(root, filepath.FromSlash(rel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalog directory: %w", err)
	}

	var files []orderedFile
	for _, e := range entries {
		if hidden(e.Name()) {
			continue
		}
		isDir, err := isDirectory(dir, e)
		if err != nil {
			return nil, err
		}
		if isDir {
			continue
		}

		relPath := path.Join(rel, e.Name())
		id, err := change.ParseFileName(rel, e.Name())
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", relPath, err)
		}
		if !slices.Contains(wanted, id.Type) || !id.AppliesTo(opts.Environment) {
			continue
		}
		if opts.Filter != nil && !opts.Filter.MatchString(relPath) {
			continue
		}

		order, err := id.Order()
		if err != nil {
			return nil, err
		}
		files = append(files, orderedFile{
			file:  change.NewFile(id, filepath.Join(dir, e.Name()), relPath),
			order: order,
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if files[i].order != files[j].order {
			return files[i].order < files[j].order
		}
		return files[i].file.RelPath() < files[j].file.RelPath()
	})
	if opts.Direction == Revert {
		slices.Reverse(files)
	}

	out := make([]change.File, len(files))
	for i, f := range files {
		out[i] = f.file
	}
	return out, nil
}

func isDirectory(dir string, e os.DirEntry) (bool, error) {
	if e.Type()&os.ModeSymlink == 0 {
		return e.IsDir(), nil
	}
	info, err := os.Stat(filepath.Join(dir, e.Name()))
	if err != nil {
		return false, fmt.Errorf("resolve symlink %s: %w", e.Name(), err)
	}
	return info.IsDir(), nil
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

func (d Direction) String() string {
	if d == Revert {
		return "revert"
	}
	return "apply"
}
