// Package templates serves document templates from a folder.
//
// A template is a "<name>.md" or "<name>.txt" file containing {{placeholders}}.
// It may open with YAML frontmatter:
//
//	---
//	title: Simple will
//	required_keys: [user.full_name, user.dob]
//	schema:
//	  entities: ...
//	---
//
// Sidecar files next to it take precedence over frontmatter:
// "<name>.keys.yaml" (ordered required keys) and "<name>.schema.yaml" or
// "<name>.schema.json" (schema override fragment).
package templates

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kayz/scribe/internal/keypath"
)

// NodeType distinguishes files from folders in a listing.
type NodeType string

const (
	NodeFile   NodeType = "file"
	NodeFolder NodeType = "folder"
)

// Node is one entry of the template tree.
type Node struct {
	Name        string   `json:"name"`
	Type        NodeType `json:"type"`
	Path        string   `json:"path"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Children    []Node   `json:"children,omitempty"`
}

// Label is the human name of a template node.
func (n Node) Label() string {
	if n.Title != "" {
		return n.Title
	}
	return n.Name
}

// MissingTemplateError reports a template that does not exist or cannot be read.
type MissingTemplateError struct {
	Path string
	Err  error
}

func (e *MissingTemplateError) Error() string {
	return fmt.Sprintf("template %s not found: %v", e.Path, e.Err)
}

func (e *MissingTemplateError) Unwrap() error {
	return e.Err
}

// Template is a loaded template with everything needed to start a session.
type Template struct {
	Path         string
	Title        string
	Description  string
	Text         string
	RequiredKeys []string
	Override     []byte
}

type frontmatter struct {
	Title        string    `yaml:"title"`
	Description  string    `yaml:"description"`
	RequiredKeys []string  `yaml:"required_keys"`
	Schema       yaml.Node `yaml:"schema"`
}

var templateExts = []string{".md", ".txt"}

// Store reads templates below a root folder.
type Store struct {
	root string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the template folder.
func (s *Store) Root() string {
	return s.root
}

// List returns the template tree. Folders come first, then files, each sorted
// by name. Empty folders are omitted.
func (s *Store) List() ([]Node, error) {
	if _, err := os.Stat(s.root); err != nil {
		return nil, fmt.Errorf("failed to open template folder %s: %w", s.root, err)
	}
	return s.listDir("")
}

func (s *Store) listDir(rel string) ([]Node, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	var folders, files []Node
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.ToSlash(filepath.Join(rel, name))
		if entry.IsDir() {
			children, err := s.listDir(path)
			if err != nil {
				return nil, err
			}
			if len(children) > 0 {
				folders = append(folders, Node{Name: name, Type: NodeFolder, Path: path, Children: children})
			}
			continue
		}
		if !isTemplateFile(name) {
			continue
		}
		node := Node{Name: strings.TrimSuffix(name, filepath.Ext(name)), Type: NodeFile, Path: path}
		if fm, _, err := s.readFrontmatter(path); err == nil && fm != nil {
			node.Title = fm.Title
			node.Description = fm.Description
		}
		files = append(files, node)
	}

	sort.Slice(folders, func(i, j int) bool { return folders[i].Name < folders[j].Name })
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return append(folders, files...), nil
}

// Files flattens a tree into its template files in listing order.
func Files(nodes []Node) []Node {
	var out []Node
	for _, n := range nodes {
		if n.Type == NodeFolder {
			out = append(out, Files(n.Children)...)
			continue
		}
		out = append(out, n)
	}
	return out
}

// Load reads a template with its required keys and schema override.
func (s *Store) Load(path string) (*Template, error) {
	fm, body, err := s.readFrontmatter(path)
	if err != nil {
		return nil, err
	}

	tpl := &Template{Path: path, Text: body}
	if fm != nil {
		tpl.Title = fm.Title
		tpl.Description = fm.Description
	}

	keys, err := s.sidecarKeys(path)
	if err != nil {
		return nil, err
	}
	switch {
	case len(keys) > 0:
		tpl.RequiredKeys = keys
	case fm != nil && len(fm.RequiredKeys) > 0:
		tpl.RequiredKeys = fm.RequiredKeys
	default:
		tpl.RequiredKeys = scanKeys(body)
	}

	override, ok, err := s.sidecarOverride(path)
	if err != nil {
		return nil, err
	}
	if ok {
		tpl.Override = override
	} else if fm != nil && fm.Schema.Kind != 0 {
		data, err := yaml.Marshal(&fm.Schema)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schema of %s: %w", path, err)
		}
		tpl.Override = data
	}
	return tpl, nil
}

// LoadTemplateText returns the template body without frontmatter.
func (s *Store) LoadTemplateText(path string) (string, error) {
	_, body, err := s.readFrontmatter(path)
	return body, err
}

// LoadSchemaOverride returns the template's schema override fragment, if any.
func (s *Store) LoadSchemaOverride(path string) ([]byte, bool, error) {
	tpl, err := s.Load(path)
	if err != nil {
		return nil, false, err
	}
	return tpl.Override, len(tpl.Override) > 0, nil
}

// LoadRequiredKeys returns the ordered keys a template needs. Without a keys
// file or frontmatter list, the placeholders of the text are used with array
// indices collapsed to "[]".
func (s *Store) LoadRequiredKeys(path string) ([]string, error) {
	tpl, err := s.Load(path)
	if err != nil {
		return nil, err
	}
	return tpl.RequiredKeys, nil
}

// resolve maps a template path to a file below root.
func (s *Store) resolve(path string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimSpace(path)))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &MissingTemplateError{Path: path, Err: errors.New("path outside template folder")}
	}
	return filepath.Join(s.root, clean), nil
}

func (s *Store) readFrontmatter(path string) (*frontmatter, string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, "", err
	}
	if !isTemplateFile(full) {
		return nil, "", &MissingTemplateError{Path: path, Err: errors.New("not a template file")}
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, "", &MissingTemplateError{Path: path, Err: err}
	}

	head, body, err := splitFrontmatter(string(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse frontmatter in %s: %w", path, err)
	}
	if head == "" {
		return nil, body, nil
	}
	var fm frontmatter
	if err := yaml.Unmarshal([]byte(head), &fm); err != nil {
		return nil, "", fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	return &fm, body, nil
}

func (s *Store) sidecarKeys(path string) ([]string, error) {
	full, err := s.resolve(sidecar(path, ".keys.yaml"))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keys for %s: %w", path, err)
	}

	var keys []string
	if err := yaml.Unmarshal(data, &keys); err != nil {
		var doc struct {
			RequiredKeys []string `yaml:"required_keys"`
		}
		if err2 := yaml.Unmarshal(data, &doc); err2 != nil {
			return nil, fmt.Errorf("failed to parse keys for %s: %w", path, err)
		}
		keys = doc.RequiredKeys
	}
	return keys, nil
}

func (s *Store) sidecarOverride(path string) ([]byte, bool, error) {
	for _, ext := range []string{".schema.yaml", ".schema.yml", ".schema.json"} {
		full, err := s.resolve(sidecar(path, ext))
		if err != nil {
			return nil, false, err
		}
		data, err := os.ReadFile(full)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to read schema override for %s: %w", path, err)
		}
		return data, true, nil
	}
	return nil, false, nil
}

func sidecar(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

func isTemplateFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range templateExts {
		if ext == e {
			return true
		}
	}
	return false
}

func scanKeys(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, k := range keypath.Markers(text) {
		k = keypath.Template(k)
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// splitFrontmatter splits a document into YAML frontmatter and body.
// Frontmatter is delimited by "---" lines at the top of the file.
func splitFrontmatter(content string) (head, body string, err error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	opened := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "---" {
			opened = true
			break
		}
		if line != "" {
			break
		}
	}
	if !opened {
		return "", content, nil
	}

	var lines []string
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			found = true
			break
		}
		lines = append(lines, line)
	}
	if !found {
		return "", content, fmt.Errorf("no closing --- found for frontmatter")
	}

	var rest []string
	for scanner.Scan() {
		rest = append(rest, scanner.Text())
	}
	return strings.Join(lines, "\n"), strings.TrimSpace(strings.Join(rest, "\n")), nil
}
