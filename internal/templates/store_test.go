package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "will.md", "---\ntitle: Simple will\ndescription: A short will\n---\nI, {{user.full_name}}, own {{property[0].address}} and {{property[1].address}}.")
	writeFile(t, root, "letters/nda.txt", "Between {{party_a}} and {{party_b}}.")
	writeFile(t, root, "letters/nda.keys.yaml", "- party_b\n- party_a\n")
	writeFile(t, root, "letters/nda.schema.json", `{"global_placeholders": {"party_a": {"type": "text"}}}`)
	writeFile(t, root, "empty/readme.pdf", "not a template")
	writeFile(t, root, "lease.md", "---\nrequired_keys: [tenant.name]\nschema:\n  description: Lease\n---\nTenant: {{tenant.name}}")
	return NewStore(root)
}

func TestListBuildsTree(t *testing.T) {
	store := newTestStore(t)

	nodes, err := store.List()
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.Equal(t, NodeFolder, nodes[0].Type)
	assert.Equal(t, "letters", nodes[0].Name)
	require.Len(t, nodes[0].Children, 1)
	assert.Equal(t, "letters/nda.txt", nodes[0].Children[0].Path)

	assert.Equal(t, "lease", nodes[1].Name)
	assert.Equal(t, "will", nodes[2].Name)
	assert.Equal(t, "Simple will", nodes[2].Label())

	files := Files(nodes)
	require.Len(t, files, 3)
	assert.Equal(t, "letters/nda.txt", files[0].Path)
}

func TestLoadFallsBackToScannedKeys(t *testing.T) {
	store := newTestStore(t)

	tpl, err := store.Load("will.md")
	require.NoError(t, err)
	assert.Equal(t, "Simple will", tpl.Title)
	assert.Equal(t, []string{"user.full_name", "property[].address"}, tpl.RequiredKeys)
	assert.NotContains(t, tpl.Text, "title:")
	assert.Empty(t, tpl.Override)
}

func TestLoadUsesSidecars(t *testing.T) {
	store := newTestStore(t)

	keys, err := store.LoadRequiredKeys("letters/nda.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"party_b", "party_a"}, keys)

	override, ok, err := store.LoadSchemaOverride("letters/nda.txt")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, string(override), "party_a")
}

func TestLoadUsesFrontmatterKeysAndSchema(t *testing.T) {
	store := newTestStore(t)

	tpl, err := store.Load("lease.md")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant.name"}, tpl.RequiredKeys)
	assert.Contains(t, string(tpl.Override), "description: Lease")
	assert.Equal(t, "Tenant: {{tenant.name}}", tpl.Text)
}

func TestMissingTemplate(t *testing.T) {
	store := newTestStore(t)

	for _, path := range []string{"nope.md", "../outside.md", "/etc/passwd", "empty/readme.pdf"} {
		_, err := store.LoadTemplateText(path)
		var missing *MissingTemplateError
		assert.True(t, errors.As(err, &missing), "path %s: %v", path, err)
	}
}

func TestListMissingRoot(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "absent")).List()
	assert.Error(t, err)
}

func TestSplitFrontmatter(t *testing.T) {
	head, body, err := splitFrontmatter("Plain {{x}}")
	require.NoError(t, err)
	assert.Empty(t, head)
	assert.Equal(t, "Plain {{x}}", body)

	_, _, err = splitFrontmatter("---\ntitle: x\nno close")
	assert.Error(t, err)
}
