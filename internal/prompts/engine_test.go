package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesVariables(t *testing.T) {
	e := NewTemplateEngine()
	require.NoError(t, e.RegisterTemplate(&Template{
		Name:    "greet",
		Content: "Hello {{name}}, welcome to {{place}}.",
	}))

	out, err := e.Render("greet", map[string]string{
		"name":  "Maren",
		"place": "Greyharbor",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Maren, welcome to Greyharbor.", out)
}

func TestRenderKeepsUnknownPlaceholders(t *testing.T) {
	e := NewTemplateEngine()
	require.NoError(t, e.RegisterTemplate(&Template{
		Name:    "partial",
		Content: "{{known}} and {{unknown}}",
	}))

	out, err := e.Render("partial", map[string]string{"known": "x"})
	require.NoError(t, err)
	assert.Equal(t, "x and {{unknown}}", out)
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	_, err := e.Render("missing", nil)
	assert.Error(t, err)
}

func TestParseTemplateVariables(t *testing.T) {
	vars := ParseTemplateVariables("{{a}} {{b}} {{a}}")
	assert.ElementsMatch(t, []string{"a", "b"}, vars)
}

func TestDefaultTemplatesRegister(t *testing.T) {
	e := NewTemplateEngine()
	require.NoError(t, e.InitializeDefaultTemplates())

	for _, name := range []string{
		"synthesis", "planner", "agent_think", "director_synthesis",
		"speech_script", "image_edit", "image_fallback", "image_verify",
	} {
		_, err := e.GetTemplate(name)
		assert.NoError(t, err, name)
	}
}

func TestImportExportRoundTrip(t *testing.T) {
	e := NewTemplateEngine()
	require.NoError(t, e.RegisterTemplate(&Template{
		Name:    "rt",
		Content: "value: {{v}}",
	}))

	data, err := e.ExportTemplate("rt")
	require.NoError(t, err)

	e2 := NewTemplateEngine()
	require.NoError(t, e2.ImportTemplate(data))
	tmpl, err := e2.GetTemplate("rt")
	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, tmpl.Variables)
}
