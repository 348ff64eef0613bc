// Package tags loads address annotations and applies them to transactions.
//
// Two file schemas are accepted. The rich schema maps an address to a
// category and an optional description:
//
//	0x82af49447d8a07e3bd95bd0d56f35241523fbab1:
//	  category: Exchange
//	  description: WETH gateway
//
// The legacy schema maps an address straight to a display tag:
//
//	0x82af49447d8a07e3bd95bd0d56f35241523fbab1: exchange
//
// Both are resolved once at load time into a Mapping.
package tags

import (
	"github.com/ethereum/go-ethereum/common"
)

// Schema names the file layout a document was parsed with.
type Schema string

const (
	SchemaRich   Schema = "rich"
	SchemaLegacy Schema = "legacy"
)

// Entry is one configured address entry, either a RichEntry or a LegacyEntry.
type Entry interface {
	// Annotation resolves the entry into the fields applied to transactions.
	Annotation() Annotation
}

// RichEntry carries a category and an optional free-form description.
type RichEntry struct {
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
}

// Annotation uses the category as the display tag.
func (e RichEntry) Annotation() Annotation {
	return Annotation{Tag: e.Category, Category: e.Category, Description: e.Description}
}

// LegacyEntry carries a single display tag.
type LegacyEntry struct {
	Tag string `json:"tag"`
}

func (e LegacyEntry) Annotation() Annotation {
	return Annotation{Tag: e.Tag}
}

// Annotation is the normalized form of an entry. Empty strings mean unset.
type Annotation struct {
	Tag         string `json:"tag"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`
}

// Mapping is the normalized address lookup used by Annotate.
type Mapping map[common.Address]Annotation

// Merge combines mappings field by field: for an address present in
// several, each non-empty field of a later mapping overrides the earlier
// value. A tag file and a category file can therefore describe the same
// address without one erasing the other.
func Merge(ms ...Mapping) Mapping {
	out := Mapping{}
	for _, m := range ms {
		for addr, a := range m {
			cur := out[addr]
			if a.Tag != "" {
				cur.Tag = a.Tag
			}
			if a.Category != "" {
				cur.Category = a.Category
			}
			if a.Description != "" {
				cur.Description = a.Description
			}
			out[addr] = cur
		}
	}
	return out
}

// Document is a parsed annotation file.
type Document struct {
	Path    string
	Schema  Schema
	Entries map[common.Address]Entry
}

// Mapping resolves every entry of the document.
func (d *Document) Mapping() Mapping {
	m := make(Mapping, len(d.Entries))
	for addr, e := range d.Entries {
		m[addr] = e.Annotation()
	}
	return m
}
