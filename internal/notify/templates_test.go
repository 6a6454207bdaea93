package notify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	assert.Equal(t, "Hi Ana, total 99.5", Render("Hi {{name}}, total {{total}}", map[string]any{"name": "Ana", "total": 99.5}))
	assert.Equal(t, "Hi {{name}}", Render("Hi {{name}}", nil))
	assert.Equal(t, "keep {{missing}}", Render("keep {{missing}}", map[string]any{"other": 1}))
	assert.Equal(t, "", Render("", map[string]any{"a": 1}))
}

func TestLoadTemplates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
survey:
  title: "Rate order {{saleId}}"
  message: "Please rate us"
journey_step:
  title: "Next step"
  message: "{{step}}"
`), 0o600))

	got, err := LoadTemplates(path, DefaultTemplates())
	require.NoError(t, err)

	assert.Equal(t, "Rate order {{saleId}}", got["survey"].Title)
	assert.Equal(t, "{{step}}", got["journey_step"].Message)
	assert.Contains(t, got, "badge_awarded")

	_, err = LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}
