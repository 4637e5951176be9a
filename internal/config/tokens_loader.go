package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	kjson "github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// TokenBundle captures the merged bypass-token table after loading every
// configured source. The metadata explains what was loaded and why certain
// definitions were skipped.
type TokenBundle struct {
	Tokens  map[string]string
	Sources []string
	Skipped []TokenSkip
}

type tokenDocument struct {
	Tokens map[string]string `koanf:"tokens"`
}

// tokenAggregator merges token documents while quarantining duplicates. A
// signature defined in two sources is disabled entirely rather than letting
// load order pick a winner.
type tokenAggregator struct {
	tokens  map[string]string
	origins map[string]string
	skips   map[string]*TokenSkip

	sources map[string]struct{}
}

func newTokenAggregator() *tokenAggregator {
	return &tokenAggregator{
		tokens:  make(map[string]string),
		origins: make(map[string]string),
		skips:   make(map[string]*TokenSkip),
		sources: make(map[string]struct{}),
	}
}

func (a *tokenAggregator) addDocument(doc tokenDocument, source string) {
	if source != "" {
		a.sources[source] = struct{}{}
	}
	for signature, token := range doc.Tokens {
		a.addToken(signature, token, source)
	}
}

func (a *tokenAggregator) addToken(signature, token, source string) {
	if existing, ok := a.skips[signature]; ok {
		existing.Sources = appendUnique(existing.Sources, source)
		return
	}
	if strings.TrimSpace(token) == "" {
		a.recordSkip(signature, "empty token value", source)
		return
	}
	if prev, ok := a.origins[signature]; ok {
		a.recordSkip(signature, "duplicate definition", prev, source)
		delete(a.origins, signature)
		delete(a.tokens, signature)
		return
	}
	a.origins[signature] = source
	a.tokens[signature] = token
}

func (a *tokenAggregator) recordSkip(signature, reason string, sources ...string) {
	if skip, ok := a.skips[signature]; ok {
		if skip.Reason == "" {
			skip.Reason = reason
		}
		for _, src := range sources {
			skip.Sources = appendUnique(skip.Sources, src)
		}
		return
	}
	skip := &TokenSkip{
		Signature: signature,
		Reason:    reason,
		Sources:   []string{},
	}
	for _, src := range sources {
		skip.Sources = appendUnique(skip.Sources, src)
	}
	a.skips[signature] = skip
}

func (a *tokenAggregator) bundle() TokenBundle {
	tokens := make(map[string]string, len(a.tokens))
	for signature, token := range a.tokens {
		tokens[signature] = token
	}
	skipped := make([]TokenSkip, 0, len(a.skips))
	for _, skip := range a.skips {
		sort.Strings(skip.Sources)
		skipped = append(skipped, *skip)
	}
	sort.Slice(skipped, func(i, j int) bool {
		return skipped[i].Signature < skipped[j].Signature
	})
	sources := make([]string, 0, len(a.sources))
	for src := range a.sources {
		if src != "" {
			sources = append(sources, src)
		}
	}
	sort.Strings(sources)
	return TokenBundle{Tokens: tokens, Sources: sources, Skipped: skipped}
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	if !slices.Contains(list, value) {
		list = append(list, value)
	}
	return list
}

func buildTokenBundle(ctx context.Context, tokensCfg TokensConfig) (TokenBundle, error) {
	agg := newTokenAggregator()

	files, err := collectTokenSources(ctx, tokensCfg)
	if err != nil {
		return TokenBundle{}, err
	}
	for _, path := range files {
		select {
		case <-ctx.Done():
			return TokenBundle{}, ctx.Err()
		default:
		}
		doc, err := loadTokenDocument(path)
		if err != nil {
			return TokenBundle{}, err
		}
		agg.addDocument(doc, path)
	}
	return agg.bundle(), nil
}

func collectTokenSources(ctx context.Context, tokensCfg TokensConfig) ([]string, error) {
	if tokensCfg.File != "" {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if err := ensureFileExists(tokensCfg.File); err != nil {
			return nil, err
		}
		return []string{tokensCfg.File}, nil
	}
	if tokensCfg.Folder == "" {
		return nil, nil
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	stat, err := os.Stat(tokensCfg.Folder)
	if err != nil {
		return nil, fmt.Errorf("config: tokens folder %s: %w", tokensCfg.Folder, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("config: tokens folder %s is not a directory", tokensCfg.Folder)
	}
	var files []string
	err = filepath.WalkDir(tokensCfg.Folder, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !isSupportedTokenFile(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("config: walk tokens folder %s: %w", tokensCfg.Folder, err)
	}
	sort.Strings(files)
	return files, nil
}

func ensureFileExists(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config: tokens file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config: tokens file %s: expected a file, found directory", path)
	}
	return nil
}

func loadTokenDocument(path string) (tokenDocument, error) {
	parser, err := parserFor(path)
	if err != nil {
		return tokenDocument{}, err
	}
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return tokenDocument{}, fmt.Errorf("config: load tokens from %s: %w", path, err)
	}
	var doc tokenDocument
	if err := k.Unmarshal("", &doc); err != nil {
		return tokenDocument{}, fmt.Errorf("config: decode tokens from %s: %w", path, err)
	}
	if doc.Tokens == nil {
		doc.Tokens = make(map[string]string)
	}
	return doc, nil
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return kjson.Parser(), nil
	case ".toml", ".tml":
		return toml.Parser(), nil
	default:
		return nil, fmt.Errorf("config: unsupported tokens file extension %s", ext)
	}
}

func isSupportedTokenFile(path string) bool {
	_, err := parserFor(path)
	return err == nil
}
