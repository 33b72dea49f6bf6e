package main

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
)

// ErrNoClassPathEntries is returned when there is nothing to load.
var ErrNoClassPathEntries = errors.New("no class path entries")

// UniverseLoadError reports a class path entry that could not be read.
type UniverseLoadError struct {
	Entry string
	Err   error
}

func (e *UniverseLoadError) Error() string {
	return fmt.Sprintf("failed to load class path entry %s: %v", e.Entry, e.Err)
}

func (e *UniverseLoadError) Unwrap() error {
	return e.Err
}

// LoadOptions configures LoadUniverse.
type LoadOptions struct {
	Workers int
	Logger  Logger
}

// resolveClassPath splits a class path string into entries. A trailing "*"
// expands to the jars of that directory, as the java launcher does.
func resolveClassPath(cp string) []string {
	isSep := func(r rune) bool {
		return r == os.PathListSeparator || r == ';'
	}

	seen := make(map[string]bool)
	var entries []string
	add := func(e string) {
		if !seen[e] {
			seen[e] = true
			entries = append(entries, e)
		}
	}

	for _, f := range strings.FieldsFunc(cp, isSep) {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		dir, ok := wildcardDir(f)
		if !ok {
			add(f)
			continue
		}
		jars, err := jarsIn(dir)
		if err != nil {
			// keep it so loading reports the bad entry
			add(f)
			continue
		}
		for _, j := range jars {
			add(j)
		}
	}
	return entries
}

func wildcardDir(entry string) (string, bool) {
	if entry == "*" {
		return ".", true
	}
	for _, suffix := range []string{"/*", string(filepath.Separator) + "*"} {
		if strings.HasSuffix(entry, suffix) {
			return strings.TrimSuffix(entry, suffix), true
		}
	}
	return "", false
}

func jarsIn(dir string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var jars []string
	for _, de := range des {
		if !de.IsDir() && strings.EqualFold(filepath.Ext(de.Name()), ".jar") {
			jars = append(jars, filepath.Join(dir, de.Name()))
		}
	}
	return jars, nil
}

// LoadUniverse reads every class reachable from entries. Entries are read
// concurrently and merged in entry order, so the first definition of a class
// wins. Classes that fail to parse are logged and left out.
func LoadUniverse(ctx context.Context, entries []string, opts LoadOptions) (*Universe, error) {
	if len(entries) == 0 {
		return nil, ErrNoClassPathEntries
	}
	log := opts.Logger
	if log == nil {
		log = NewSilentLogger()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([][]*ClassDescriptor, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, entry := range entries {
		g.Go(func() error {
			classes, err := loadEntry(ctx, entry, log.WithFields(F("entry", entry)))
			if err != nil {
				return &UniverseLoadError{Entry: entry, Err: err}
			}
			results[i] = classes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	u := NewUniverse()
	shadowed := 0
	for _, classes := range results {
		for _, c := range classes {
			if !u.add(c) {
				shadowed++
			}
		}
	}
	log.Info("Loaded class universe",
		F("entries", len(entries)),
		F("classes", u.Len()),
		F("shadowed", shadowed))
	return u, nil
}

func loadEntry(ctx context.Context, entry string, log Logger) ([]*ClassDescriptor, error) {
	info, err := os.Stat(entry)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsDir():
		return loadDirectory(ctx, entry, log)
	case isArchive(entry):
		return loadArchive(ctx, entry, log)
	case strings.HasSuffix(entry, ".class"):
		data, err := os.ReadFile(entry)
		if err != nil {
			return nil, err
		}
		return collectClass(nil, entry, data, log), nil
	default:
		return nil, fmt.Errorf("unsupported class path entry type")
	}
}

func isArchive(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".jar" || ext == ".zip"
}

// isClassEntry reports whether name is a loadable class file. Module and
// package descriptors carry no class structure.
func isClassEntry(name string) bool {
	base := path.Base(filepath.ToSlash(name))
	return strings.HasSuffix(base, ".class") &&
		base != "module-info.class" &&
		base != "package-info.class"
}

func loadDirectory(ctx context.Context, root string, log Logger) ([]*ClassDescriptor, error) {
	var classes []*ClassDescriptor
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !isClassEntry(p) {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			log.Warn("Skipping unreadable class file", F("file", p), F("error", err))
			return nil
		}
		classes = collectClass(classes, p, data, log)
		return nil
	})
	return classes, err
}

func loadArchive(ctx context.Context, name string, log Logger) ([]*ClassDescriptor, error) {
	zr, err := zip.OpenReader(name)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var classes []*ClassDescriptor
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// multi-release variants under META-INF/versions shadow nothing here
		if f.FileInfo().IsDir() || strings.HasPrefix(f.Name, "META-INF/") || !isClassEntry(f.Name) {
			continue
		}
		data, err := readZipFile(f)
		if err != nil {
			log.Warn("Skipping unreadable archive entry", F("file", f.Name), F("error", err))
			continue
		}
		classes = collectClass(classes, f.Name, data, log)
	}
	return classes, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func collectClass(classes []*ClassDescriptor, source string, data []byte, log Logger) []*ClassDescriptor {
	c, err := parseClassFile(data)
	if err != nil {
		var cfe *ClassFormatError
		if errors.As(err, &cfe) && cfe.Source == "" {
			cfe.Source = source
		}
		log.Warn("Skipping class that failed to parse", F("file", source), F("error", err))
		return classes
	}
	log.Debug("Loaded class", F("class", c.Name), F("methods", len(c.Methods)))
	return append(classes, c)
}
