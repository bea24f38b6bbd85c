package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gpimon/internal/domain"
)

// DropInDir is the directory, next to the main config file, whose *.yaml,
// *.yml and *.toml fragments are applied after the main file in name order.
// Packages and the daemon installer put per-board pin maps there.
const DropInDir = "gpimon.d"

const maxIncludeDepth = 10

// overlay layers config fragments onto a Config. A file's includes are
// applied before the file itself so the including file wins; drop-ins are
// applied last. Every fragment must live under root.
type overlay struct {
	root   string
	active map[string]bool // files on the current include chain
}

func newOverlay(mainPath string) *overlay {
	return &overlay{root: filepath.Dir(mainPath), active: make(map[string]bool)}
}

func overlayError(path, detail string) error {
	return domain.NewDomainError("config.Load", domain.ErrConfigLoad, path+": "+detail)
}

// apply decodes the file at path onto cfg after applying its includes.
func (o *overlay) apply(cfg *Config, path string, depth int) error {
	if depth > maxIncludeDepth {
		return overlayError(path, fmt.Sprintf("includes exceed max depth %d", maxIncludeDepth))
	}
	if o.active[path] {
		return overlayError(path, "circular include")
	}
	o.active[path] = true
	defer delete(o.active, path)

	if err := validatePermissions(path); err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.NewDomainError("config.Load", domain.ErrConfigLoad, path).WithCause(err)
	}

	var probe Config
	if err := decode(path, data, &probe); err != nil {
		return domain.NewDomainError("config.Load", domain.ErrConfigLoad, "parse "+path).WithCause(err)
	}
	for _, pattern := range probe.Includes {
		files, err := o.expand(pattern, filepath.Dir(path))
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := o.apply(cfg, f, depth+1); err != nil {
				return err
			}
		}
	}

	if err := decode(path, data, cfg); err != nil {
		return domain.NewDomainError("config.Load", domain.ErrConfigLoad, "parse "+path).WithCause(err)
	}
	cfg.Includes = nil
	return nil
}

// applyDropIns applies every fragment in root/DropInDir. A missing
// directory is not an error.
func (o *overlay) applyDropIns(cfg *Config) error {
	matches, err := filepath.Glob(filepath.Join(o.root, DropInDir, "*"))
	if err != nil {
		return overlayError(o.root, err.Error())
	}
	for _, m := range matches {
		switch strings.ToLower(filepath.Ext(m)) {
		case ".yaml", ".yml", ".toml":
		default:
			continue
		}
		if info, err := os.Stat(m); err != nil || info.IsDir() {
			continue
		}
		if err := o.apply(cfg, m, 1); err != nil {
			return err
		}
	}
	return nil
}

// expand resolves an include pattern relative to dir. A literal path is
// returned even if it does not exist so the read reports it; a glob that
// matches nothing yields no files.
func (o *overlay) expand(pattern, dir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(dir, pattern)
	}
	pattern = filepath.Clean(pattern)

	rel, err := filepath.Rel(o.root, pattern)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, overlayError(pattern, "include escapes config directory "+o.root)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, overlayError(pattern, err.Error())
	}
	return matches, nil
}
