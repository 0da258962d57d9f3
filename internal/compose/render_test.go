package compose

import (
	"slices"
	"testing"
)

func TestRender(t *testing.T) {
	values := map[string]string{"name": "Dana", "city": "Haifa", "first name": "Dana"}
	tests := []struct {
		tmpl string
		want string
	}{
		{"Hi {{name}}", "Hi Dana"},
		{"Hi {{ name }}, still in {{city}}?", "Hi Dana, still in Haifa?"},
		{"{{name}}{{name}}", "DanaDana"},
		{"Hi {{unknown}}", "Hi {{unknown}}"},
		{"Hi {{Name}}", "Hi {{Name}}"},
		{"שלום {{first name}}", "שלום Dana"},
		{"no tokens", "no tokens"},
		{"{single}", "{single}"},
	}
	for _, tt := range tests {
		if got := Render(tt.tmpl, values); got != tt.want {
			t.Errorf("Render(%q) = %q, want %q", tt.tmpl, got, tt.want)
		}
	}
}

func TestRenderNoValues(t *testing.T) {
	if got := Render("Hi {{name}}", nil); got != "Hi {{name}}" {
		t.Errorf("Render(nil values) = %q", got)
	}
}

func TestMissing(t *testing.T) {
	got := Missing("{{a}} {{b}} {{a}} {{c}}", map[string]string{"b": "x"})
	if !slices.Equal(got, []string{"a", "c"}) {
		t.Errorf("Missing() = %v, want [a c]", got)
	}
}
