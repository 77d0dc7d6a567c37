// Package skills implements the Skills Directory (A2): listing and
// reading Skill documents for GET /api/skills and GET /api/skills/{id}.
// A Skill document is a Markdown file with a leading YAML front-matter
// block (name, description, allowed-tools) followed by body content
// returned verbatim.
//
// Grounded on the front-matter-plus-body parsing idiom used throughout the
// pack for Markdown-with-metadata documents, using gopkg.in/yaml.v3 (a
// direct teacher dependency) for the front-matter block.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata is a Skill document's front-matter block.
type Metadata struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"allowed-tools"`
}

// Skill is one fully parsed Skill document.
type Skill struct {
	ID       string
	Metadata Metadata
	Body     string
}

// Directory lists and reads Skill documents from a conventionally located
// directory on disk. Each immediate subdirectory containing a SKILL.md
// file is one Skill, keyed by its subdirectory name.
type Directory struct {
	root string
}

// NewDirectory returns a Directory rooted at root.
func NewDirectory(root string) *Directory {
	return &Directory{root: root}
}

// List returns every Skill under the directory, sorted by ID. Parse
// failures for an individual skill are skipped rather than failing the
// whole listing, since one malformed document should not take down
// GET /api/skills.
func (d *Directory) List() ([]Skill, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("skills: read dir %q: %w", d.root, err)
	}
	var out []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		skill, err := d.Get(e.Name())
		if err != nil {
			continue
		}
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get reads and parses the Skill with the given ID (its subdirectory
// name).
func (d *Directory) Get(id string) (Skill, error) {
	path := filepath.Join(d.root, id, "SKILL.md")
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, fmt.Errorf("skills: read %q: %w", path, err)
	}
	meta, body, err := parseFrontMatter(string(data))
	if err != nil {
		return Skill{}, fmt.Errorf("skills: parse %q: %w", path, err)
	}
	if meta.Name == "" {
		meta.Name = id
	}
	return Skill{ID: id, Metadata: meta, Body: body}, nil
}

const frontMatterDelim = "---"

// parseFrontMatter splits a document into its YAML front-matter block and
// Markdown body. A document with no front-matter block is returned with an
// empty Metadata and the whole document as Body.
func parseFrontMatter(doc string) (Metadata, string, error) {
	trimmed := strings.TrimLeft(doc, "﻿ \t\r\n")
	if !strings.HasPrefix(trimmed, frontMatterDelim) {
		return Metadata{}, doc, nil
	}
	rest := trimmed[len(frontMatterDelim):]
	rest = strings.TrimPrefix(rest, "\n")
	end := strings.Index(rest, "\n"+frontMatterDelim)
	if end == -1 {
		return Metadata{}, doc, nil
	}
	block := rest[:end]
	body := strings.TrimLeft(rest[end+len("\n"+frontMatterDelim):], "\r\n")

	var meta Metadata
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return Metadata{}, "", fmt.Errorf("invalid front matter: %w", err)
	}
	return meta, body, nil
}
