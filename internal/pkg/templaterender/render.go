package templaterender

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/strogmv/notifyd/internal/domain"
)

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// RenderString substitutes {{name}} placeholders with values from data.
// Placeholders without a non-nil value are left in the output verbatim.
func RenderString(src string, data map[string]any) string {
	if src == "" {
		return ""
	}
	return placeholder.ReplaceAllStringFunc(src, func(m string) string {
		name := m[2 : len(m)-2]
		v, ok := data[name]
		if !ok || v == nil {
			return m
		}
		return stringify(v)
	})
}

// Validate reports whether every placeholder in src has a non-nil value.
func Validate(src string, data map[string]any) bool {
	return len(Missing(src, data)) == 0
}

// Missing lists placeholder variables of src absent from data, in order of
// first appearance.
func Missing(src string, data map[string]any) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(src, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if v, ok := data[name]; !ok || v == nil {
			out = append(out, name)
		}
	}
	return out
}

// Variables lists the distinct placeholder names in src.
func Variables(src string) []string {
	var out []string
	seen := map[string]bool{}
	for _, m := range placeholder.FindAllStringSubmatch(src, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}

// Rendered is the output of RenderTemplate.
type Rendered struct {
	Subject string
	Body    string
	// Missing holds variables required by the template but absent from data.
	Missing []string
}

// Valid reports whether rendering found every variable.
func (r Rendered) Valid() bool { return len(r.Missing) == 0 }

// RenderTemplate renders subject and body. Missing variables never block
// rendering; they are reported for diagnostics.
func RenderTemplate(t *domain.Template, data map[string]any) Rendered {
	out := Rendered{
		Subject: RenderString(t.Subject, data),
		Body:    RenderString(t.Body, data),
	}
	seen := map[string]bool{}
	add := func(names []string) {
		for _, n := range names {
			if !seen[n] {
				seen[n] = true
				out.Missing = append(out.Missing, n)
			}
		}
	}
	add(Missing(t.Subject, data))
	add(Missing(t.Body, data))
	for _, req := range t.RequiredVariables {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		if v, ok := data[req]; !ok || v == nil {
			add([]string{req})
		}
	}
	return out
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	case float64:
		// JSON numbers decode as float64; keep integers free of a trailing ".0".
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprint(x)
	}
	return fmt.Sprint(v)
}
