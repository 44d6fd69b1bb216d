package devices

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/KevinKickass/OpenRoadwayCore/internal/types"
)

var profileExtensions = []string{".yaml", ".yml", ".json"}

// LinkLoader reads comm link catalogs.
type LinkLoader struct {
	validator *Validator
}

func NewLinkLoader(validator *Validator) *LinkLoader {
	return &LinkLoader{validator: validator}
}

// Load reads and validates every catalog file, in order. Link names must be
// unique across files.
func (l *LinkLoader) Load(files ...string) (*types.LinkCatalog, error) {
	merged := &types.LinkCatalog{}
	seen := make(map[string]string)
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read link catalog: %w", err)
		}
		cat, err := l.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, link := range cat.Links {
			if prev, dup := seen[link.Name]; dup {
				return nil, fmt.Errorf("%s: link %s already defined in %s", path, link.Name, prev)
			}
			seen[link.Name] = path
		}
		merged.Links = append(merged.Links, cat.Links...)
	}
	return merged, nil
}

// Parse validates and decodes one catalog document.
func (l *LinkLoader) Parse(data []byte) (*types.LinkCatalog, error) {
	if err := l.validator.ValidateCatalog(data); err != nil {
		return nil, err
	}
	var cat types.LinkCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link catalog: %w", err)
	}
	return &cat, nil
}

// ProfileLoader finds register profiles by id in its search paths and
// caches them.
type ProfileLoader struct {
	cache       sync.Map
	validator   *Validator
	searchPaths []string
}

func NewProfileLoader(validator *Validator, searchPaths []string) *ProfileLoader {
	return &ProfileLoader{validator: validator, searchPaths: searchPaths}
}

func (l *ProfileLoader) Load(id string) (*types.RegisterProfile, error) {
	if cached, ok := l.cache.Load(id); ok {
		return cached.(*types.RegisterProfile), nil
	}

	data, foundPath, err := l.find(id)
	if err != nil {
		return nil, err
	}
	if err := l.validator.ValidateProfile(data); err != nil {
		return nil, fmt.Errorf("validation failed for %s: %w", foundPath, err)
	}

	var profile types.RegisterProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	for _, g := range profile.Groups {
		for _, name := range g.Registers {
			if _, ok := profile.Register(name); !ok {
				return nil, fmt.Errorf("%s: group %s names unknown register %s", foundPath, g.Name, name)
			}
		}
	}

	l.cache.Store(id, &profile)
	return &profile, nil
}

func (l *ProfileLoader) find(id string) ([]byte, string, error) {
	for _, searchPath := range l.searchPaths {
		for _, ext := range profileExtensions {
			fullPath := filepath.Join(searchPath, id+ext)
			data, err := os.ReadFile(fullPath)
			if err == nil {
				return data, fullPath, nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, "", fmt.Errorf("failed to read profile %s: %w", fullPath, err)
			}
		}
	}
	return nil, "", fmt.Errorf("profile not found: %s (searched in: %v)", id, l.searchPaths)
}

func (l *ProfileLoader) ClearCache() {
	l.cache.Range(func(key, value any) bool {
		l.cache.Delete(key)
		return true
	})
}
