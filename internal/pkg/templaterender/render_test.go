package templaterender

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strogmv/notifyd/internal/domain"
)

func TestRenderStringLeavesMissingPlaceholders(t *testing.T) {
	t.Parallel()

	src := "Hello {{username}}, score {{score}}"
	data := map[string]any{"username": "Ann"}

	assert.Equal(t, "Hello Ann, score {{score}}", RenderString(src, data))
	assert.False(t, Validate(src, data))
	assert.Equal(t, []string{"score"}, Missing(src, data))
}

func TestRenderStringNilValueIsMissing(t *testing.T) {
	t.Parallel()

	data := map[string]any{"name": nil}
	assert.Equal(t, "hi {{name}}", RenderString("hi {{name}}", data))
	assert.False(t, Validate("hi {{name}}", data))
}

func TestRenderStringIsPure(t *testing.T) {
	t.Parallel()

	src := "{{a}}-{{b}}-{{a}} {{c}}"
	data := map[string]any{"a": 1, "b": "x"}

	first := RenderString(src, data)
	second := RenderString(src, data)
	assert.Equal(t, first, second)
	assert.Equal(t, "1-x-1 {{c}}", first)
	assert.Equal(t, map[string]any{"a": 1, "b": "x"}, data)
}

func TestRenderStringFormatsValues(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		value any
		want  string
	}{
		"int":          {value: 42, want: "42"},
		"whole float":  {value: 95.0, want: "95"},
		"real float":   {value: 87.5, want: "87.5"},
		"bool":         {value: true, want: "true"},
		"dollar value": {value: "$1 off", want: "$1 off"},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, "v="+tc.want, RenderString("v={{v}}", map[string]any{"v": tc.value}))
		})
	}
}

func TestRenderStringIgnoresNonWordPlaceholders(t *testing.T) {
	t.Parallel()

	src := "{{ spaced }} {{dotted.name}} {{ok}}"
	assert.Equal(t, "{{ spaced }} {{dotted.name}} yes", RenderString(src, map[string]any{"ok": "yes"}))
	assert.Equal(t, []string{"ok"}, Variables(src))
}

func TestValidateEmptyTemplate(t *testing.T) {
	t.Parallel()

	assert.True(t, Validate("", nil))
	assert.Equal(t, "", RenderString("", nil))
}

func TestRenderTemplateReportsRequiredVariables(t *testing.T) {
	t.Parallel()

	tpl := &domain.Template{
		Name:              "welcome_user_email",
		Channel:           domain.ChannelEmail,
		Subject:           "Welcome {{firstName}}",
		Body:              "Hi {{username}}",
		RequiredVariables: []string{"username", "email"},
	}
	out := RenderTemplate(tpl, map[string]any{"username": "ann"})

	assert.Equal(t, "Welcome {{firstName}}", out.Subject)
	assert.Equal(t, "Hi ann", out.Body)
	require.False(t, out.Valid())
	assert.Equal(t, []string{"firstName", "email"}, out.Missing)
}
