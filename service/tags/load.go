package tags

import (
	"fmt"
	"strings"

	"github.com/brojonat/arbledger/service/config"
	"github.com/ethereum/go-ethereum/common"
)

// ConfigParseError is returned when a file cannot be read as either schema.
type ConfigParseError struct {
	Path      string
	RichErr   error
	LegacyErr error
}

func (e *ConfigParseError) Error() string {
	if e.LegacyErr == nil {
		return fmt.Sprintf("failed to parse %s: %v", e.Path, e.RichErr)
	}
	return fmt.Sprintf("failed to parse %s: not a category file (%v) and not a tag file (%v)", e.Path, e.RichErr, e.LegacyErr)
}

func (e *ConfigParseError) Unwrap() []error {
	var errs []error
	if e.RichErr != nil {
		errs = append(errs, e.RichErr)
	}
	if e.LegacyErr != nil {
		errs = append(errs, e.LegacyErr)
	}
	return errs
}

// LoadFile loads an annotation file and resolves it into a Mapping.
func LoadFile(path string) (Mapping, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return doc.Mapping(), nil
}

// LoadFiles loads the optional category and tag files and merges them, tags
// last. Empty paths are skipped; with neither set the mapping is empty.
func LoadFiles(tagsPath, categoriesPath string) (Mapping, error) {
	var ms []Mapping
	for _, path := range []string{categoriesPath, tagsPath} {
		if path == "" {
			continue
		}
		m, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	return Merge(ms...), nil
}

// LoadDocument reads path (JSON, TOML or YAML by extension) and parses it,
// trying the rich schema first and the legacy schema second.
func LoadDocument(path string) (*Document, error) {
	raw := map[string]any{}
	if err := config.DecodeFile(path, &raw); err != nil {
		return nil, &ConfigParseError{Path: path, RichErr: err}
	}
	doc, err := Parse(raw)
	if err != nil {
		if perr, ok := err.(*ConfigParseError); ok {
			perr.Path = path
		}
		return nil, err
	}
	doc.Path = path
	return doc, nil
}

// Parse interprets a decoded document.
func Parse(raw map[string]any) (*Document, error) {
	rich, richErr := parseRich(raw)
	if richErr == nil {
		return &Document{Schema: SchemaRich, Entries: rich}, nil
	}
	legacy, legacyErr := parseLegacy(raw)
	if legacyErr == nil {
		return &Document{Schema: SchemaLegacy, Entries: legacy}, nil
	}
	return nil, &ConfigParseError{RichErr: richErr, LegacyErr: legacyErr}
}

func parseRich(raw map[string]any) (map[common.Address]Entry, error) {
	entries := make(map[common.Address]Entry, len(raw))
	for key, value := range raw {
		addr, err := parseKey(key)
		if err != nil {
			return nil, err
		}
		fields, ok := value.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: expected a table with a category", key)
		}
		category, ok := fields["category"].(string)
		if !ok || strings.TrimSpace(category) == "" {
			return nil, fmt.Errorf("%s: missing category", key)
		}
		entry := RichEntry{Category: category}
		if d, present := fields["description"]; present && d != nil {
			desc, ok := d.(string)
			if !ok {
				return nil, fmt.Errorf("%s: description must be a string", key)
			}
			entry.Description = desc
		}
		entries[addr] = entry
	}
	return entries, nil
}

func parseLegacy(raw map[string]any) (map[common.Address]Entry, error) {
	entries := make(map[common.Address]Entry, len(raw))
	for key, value := range raw {
		addr, err := parseKey(key)
		if err != nil {
			return nil, err
		}
		tag, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%s: expected a tag string", key)
		}
		entries[addr] = LegacyEntry{Tag: tag}
	}
	return entries, nil
}

func parseKey(key string) (common.Address, error) {
	key = strings.TrimSpace(key)
	if !common.IsHexAddress(key) {
		return common.Address{}, fmt.Errorf("%q is not a valid address", key)
	}
	return common.HexToAddress(key), nil
}
