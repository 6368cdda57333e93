// Package catalog loads skill bundles from disk. A bundle is one directory
// holding a SKILL.md manifest (YAML frontmatter plus the document body) and
// any number of attached reference-data files.
package catalog

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"github.com/halgrim/skilldex/internal/skill"
)

const manifestName = "SKILL.md"

// Failure records one bundle that could not be loaded during a bulk scan.
type Failure struct {
	Dir string
	Err error
}

// LoadDir scans every immediate subdirectory of dir as a bundle. It is
// fail-soft: a broken bundle lands in failures and the scan continues.
func LoadDir(dir string) ([]*skill.Definition, []Failure, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read catalog directory %s", dir)
	}

	var defs []*skill.Definition
	var failures []Failure
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		bundleDir := filepath.Join(dir, entry.Name())
		def, err := LoadBundle(bundleDir)
		if err != nil {
			failures = append(failures, Failure{Dir: bundleDir, Err: err})
			continue
		}
		defs = append(defs, def)
	}
	return defs, failures, nil
}

// LoadBundle loads one bundle directory into a validated definition.
func LoadBundle(dir string) (*skill.Definition, error) {
	manifest, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, errors.Wrapf(err, "bundle %s: read manifest", dir)
	}

	def, err := parseManifest(manifest)
	if err != nil {
		return nil, errors.Wrapf(err, "bundle %s", dir)
	}

	files, err := attachedFiles(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "bundle %s", dir)
	}
	def.Files = files

	if err := def.Validate(); err != nil {
		return nil, errors.Wrapf(err, "bundle %s", dir)
	}
	return def, nil
}

// parseManifest splits SKILL.md into frontmatter metadata and document body.
func parseManifest(content []byte) (*skill.Definition, error) {
	md := goldmark.New(goldmark.WithExtensions(meta.Meta))

	var buf bytes.Buffer
	pctx := parser.NewContext()
	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, errors.Wrap(err, "parse manifest markdown")
	}

	metaData := meta.Get(pctx)
	if metaData == nil {
		return nil, errors.New("manifest missing frontmatter")
	}

	def := &skill.Definition{
		ID:               stringField(metaData, "name"),
		Title:            stringField(metaData, "title"),
		Description:      stringField(metaData, "description"),
		ShortDescription: stringField(metaData, "short_description"),
		Domain:           stringField(metaData, "domain"),
		Tags:             stringList(metaData, "tags"),
		DocumentBody:     stripFrontmatter(string(content)),
	}
	if def.ID == "" {
		return nil, errors.New("manifest frontmatter requires a name")
	}
	if def.Title == "" {
		def.Title = def.ID
	}
	return def, nil
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return strings.TrimSpace(v)
}

func stringList(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// stripFrontmatter returns the document body after the closing --- line.
func stripFrontmatter(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}
	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}

// attachedFiles collects every file in the bundle other than the manifest,
// named by its path relative to the bundle root.
func attachedFiles(dir string) ([]skill.File, error) {
	var files []skill.File
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == manifestName {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read attached file %s", rel)
		}
		files = append(files, skill.File{Name: filepath.ToSlash(rel), Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
