package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func waitForBundle(t *testing.T, bundles <-chan TokenBundle, check func(TokenBundle) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case bundle := <-bundles:
			if check(bundle) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for token bundle")
		}
	}
}

func TestWatchTokensDeliversInitialBundle(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tokens.yaml", "tokens:\n  sig-a: tok-a\n")

	bundles := make(chan TokenBundle, 8)
	watcher, err := NewLoader("OPENSHELF").WatchTokens(context.Background(), TokensConfig{File: path},
		func(bundle TokenBundle) { bundles <- bundle }, nil)
	require.NoError(t, err)
	defer watcher.Stop()

	waitForBundle(t, bundles, func(b TokenBundle) bool {
		return b.Tokens["sig-a"] == "tok-a"
	})
}

func TestWatchTokensReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tokens.yaml", "tokens:\n  sig-a: tok-a\n")

	bundles := make(chan TokenBundle, 8)
	watcher, err := NewLoader("OPENSHELF").WatchTokens(context.Background(), TokensConfig{File: path},
		func(bundle TokenBundle) { bundles <- bundle }, func(error) {})
	require.NoError(t, err)
	defer watcher.Stop()

	waitForBundle(t, bundles, func(b TokenBundle) bool {
		return b.Tokens["sig-a"] == "tok-a"
	})

	require.NoError(t, os.WriteFile(path, []byte("tokens:\n  sig-a: tok-rotated\n"), 0o600))

	waitForBundle(t, bundles, func(b TokenBundle) bool {
		return b.Tokens["sig-a"] == "tok-rotated"
	})
}

func TestWatchTokensFolderPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "tokens:\n  sig-a: tok-a\n")

	bundles := make(chan TokenBundle, 8)
	watcher, err := NewLoader("OPENSHELF").WatchTokens(context.Background(), TokensConfig{Folder: dir},
		func(bundle TokenBundle) { bundles <- bundle }, func(error) {})
	require.NoError(t, err)
	defer watcher.Stop()

	waitForBundle(t, bundles, func(b TokenBundle) bool {
		return b.Tokens["sig-a"] == "tok-a"
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("tokens:\n  sig-b: tok-b\n"), 0o600))

	waitForBundle(t, bundles, func(b TokenBundle) bool {
		return b.Tokens["sig-b"] == "tok-b"
	})
}

func TestWatchTokensRequiresSourceAndCallback(t *testing.T) {
	loader := NewLoader("OPENSHELF")

	_, err := loader.WatchTokens(context.Background(), TokensConfig{}, func(TokenBundle) {}, nil)
	require.Error(t, err)

	_, err = loader.WatchTokens(context.Background(), TokensConfig{File: "x.yaml"}, nil, nil)
	require.Error(t, err)
}

func TestWatchTokensStopIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tokens.yaml", "tokens: {}\n")

	watcher, err := NewLoader("OPENSHELF").WatchTokens(context.Background(), TokensConfig{File: path},
		func(TokenBundle) {}, nil)
	require.NoError(t, err)

	watcher.Stop()
	watcher.Stop()
}
