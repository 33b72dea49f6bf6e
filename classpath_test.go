package main

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveClassPath(t *testing.T) {
	libDir := t.TempDir()
	for _, name := range []string{"b.jar", "a.JAR", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(libDir, name), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(libDir, "sub.jar"), 0o755))

	sep := string(os.PathListSeparator)

	tests := []struct {
		name string
		cp   string
		want []string
	}{
		{
			name: "os separator",
			cp:   "classes" + sep + "lib/dep.jar",
			want: []string{"classes", "lib/dep.jar"},
		},
		{
			name: "semicolons, blanks and duplicates",
			cp:   " classes ; dep.jar;;classes;",
			want: []string{"classes", "dep.jar"},
		},
		{
			name: "wildcard expands to jars",
			cp:   "classes;" + libDir + "/*",
			want: []string{"classes", filepath.Join(libDir, "a.JAR"), filepath.Join(libDir, "b.jar")},
		},
		{
			name: "unreadable wildcard kept verbatim",
			cp:   filepath.Join(libDir, "missing") + "/*",
			want: []string{filepath.Join(libDir, "missing") + "/*"},
		},
		{
			name: "empty",
			cp:   "  ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveClassPath(tt.cp))
		})
	}
}

func TestLoadUniverse_DirectoriesAndJars(t *testing.T) {
	root := t.TempDir()
	classesDir := filepath.Join(root, "classes")
	writeClassDir(t, classesDir, scenarioClasses("p.")[0], scenarioClasses("p.")[2])
	require.NoError(t, os.WriteFile(filepath.Join(classesDir, "p", "broken.class"), []byte("not a class"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(classesDir, "module-info.class"), []byte("ignored"), 0o644))

	// The jar redefines p.A; the directory comes first and wins.
	shadow := assemble(testClass{name: "p.A", super: "p.Other"})
	jar := filepath.Join(root, "lib.jar")
	writeJar(t, jar,
		[]string{"META-INF/MANIFEST.MF", "p/B.class", "p/A.class", "META-INF/versions/11/p/D.class"},
		[][]byte{[]byte("Manifest-Version: 1.0\n"), assemble(scenarioClasses("p.")[1]), shadow, assemble(testClass{name: "p.D"})})

	var logs bytes.Buffer
	u, err := LoadUniverse(context.Background(), []string{classesDir, jar},
		LoadOptions{Workers: 2, Logger: NewLogger(LevelDebug, &logs)})
	require.NoError(t, err)

	assert.Equal(t, []string{"p.A", "p.C", "p.B"}, u.Names())

	a, ok := u.Lookup("p.A")
	require.True(t, ok)
	assert.Equal(t, "p.B", a.SuperClass)

	c, ok := u.Lookup("p.C")
	require.True(t, ok)
	require.Len(t, c.Methods, 1)
	assert.Equal(t, []CallSite{{CalleeClass: "p.A", CalleeMethod: "m()V"}}, c.Methods[0].Calls)

	assert.Contains(t, logs.String(), "Skipping class that failed to parse")
	assert.Contains(t, logs.String(), "broken.class")
	assert.Contains(t, logs.String(), "shadowed=1")
}

func TestLoadUniverse_SingleClassFile(t *testing.T) {
	dir := t.TempDir()
	writeClassDir(t, dir, testClass{name: "Solo", super: "java.lang.Object"})

	u, err := LoadUniverse(context.Background(), []string{filepath.Join(dir, "Solo.class")}, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Solo"}, u.Names())
}

func TestLoadUniverse_Errors(t *testing.T) {
	dir := t.TempDir()
	textFile := filepath.Join(dir, "readme.txt")
	require.NoError(t, os.WriteFile(textFile, []byte("hi"), 0o644))
	badJar := filepath.Join(dir, "bad.jar")
	require.NoError(t, os.WriteFile(badJar, []byte("not a zip"), 0o644))

	t.Run("no entries", func(t *testing.T) {
		_, err := LoadUniverse(context.Background(), nil, LoadOptions{})
		assert.ErrorIs(t, err, ErrNoClassPathEntries)
	})

	t.Run("missing entry", func(t *testing.T) {
		missing := filepath.Join(dir, "nope")
		_, err := LoadUniverse(context.Background(), []string{dir, missing}, LoadOptions{})
		require.Error(t, err)

		var loadErr *UniverseLoadError
		require.True(t, errors.As(err, &loadErr))
		assert.Equal(t, missing, loadErr.Entry)
		assert.True(t, errors.Is(err, fs.ErrNotExist))
	})

	t.Run("unsupported entry", func(t *testing.T) {
		_, err := LoadUniverse(context.Background(), []string{textFile}, LoadOptions{})
		var loadErr *UniverseLoadError
		require.True(t, errors.As(err, &loadErr))
		assert.True(t, strings.Contains(err.Error(), "unsupported"))
	})

	t.Run("corrupt archive", func(t *testing.T) {
		_, err := LoadUniverse(context.Background(), []string{badJar}, LoadOptions{})
		var loadErr *UniverseLoadError
		assert.True(t, errors.As(err, &loadErr))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := LoadUniverse(ctx, []string{dir}, LoadOptions{})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewUniverse_FirstDefinitionWins(t *testing.T) {
	u := NewUniverse(
		&ClassDescriptor{Name: "A", SuperClass: "B"},
		&ClassDescriptor{Name: "B"},
		&ClassDescriptor{Name: "A", SuperClass: "C"},
		nil,
		&ClassDescriptor{},
	)

	assert.Equal(t, 2, u.Len())
	assert.Equal(t, []string{"A", "B"}, u.Names())
	a, _ := u.Lookup("A")
	assert.Equal(t, "B", a.SuperClass)

	var empty *Universe
	assert.Zero(t, empty.Len())
	assert.Nil(t, empty.Names())
}
