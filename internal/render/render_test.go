package render

import (
	"reflect"
	"testing"

	"github.com/mailkite/mailkite/internal/models"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		template string
		vars     map[string]string
		want     string
	}{
		{
			name:     "single token",
			template: "Hi {{name}}!",
			vars:     map[string]string{"name": "Ann"},
			want:     "Hi Ann!",
		},
		{
			name:     "repeated token replaced everywhere",
			template: "{{name}} and {{name}} again",
			vars:     map[string]string{"name": "Bob"},
			want:     "Bob and Bob again",
		},
		{
			name:     "unbound token preserved verbatim",
			template: "Hi {{name}}, from {{company}}",
			vars:     map[string]string{"name": "Ann"},
			want:     "Hi Ann, from {{company}}",
		},
		{
			name:     "empty value is a binding",
			template: "Hi {{name}}!",
			vars:     map[string]string{"name": ""},
			want:     "Hi !",
		},
		{
			name:     "no tokens",
			template: "plain text",
			vars:     map[string]string{"name": "Ann"},
			want:     "plain text",
		},
		{
			name:     "inner text matched verbatim",
			template: "{{ name }} vs {{name}}",
			vars:     map[string]string{"name": "Ann"},
			want:     "{{ name }} vs Ann",
		},
		{
			name:     "nil vars",
			template: "Hi {{name}}",
			vars:     nil,
			want:     "Hi {{name}}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.template, tt.vars)
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderIdempotent(t *testing.T) {
	vars := map[string]string{"name": "Ann"}
	once := Render("Hi {{name}}, from {{company}}", vars)
	twice := Render(once, vars)
	if once != twice {
		t.Errorf("second render changed output: %q != %q", twice, once)
	}
}

func TestTokens(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     []string
	}{
		{
			name:     "deduped in order of first appearance",
			template: "{{a}} and {{b}} and {{a}}",
			want:     []string{"a", "b"},
		},
		{
			name:     "whitespace trimmed",
			template: "{{ name }} {{email}}",
			want:     []string{"name", "email"},
		},
		{
			name:     "no tokens",
			template: "nothing here",
			want:     nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Tokens(tt.template)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Tokens() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBindings(t *testing.T) {
	r := models.Recipient{
		Name:  "Ann",
		Email: "ann@example.com",
		CustomFields: map[string]string{
			"company": "Acme",
			"name":    "should not win",
		},
	}
	got := Bindings(r)
	if got["name"] != "Ann" {
		t.Errorf("built-in name shadowed: got %q", got["name"])
	}
	if got["email"] != "ann@example.com" {
		t.Errorf("email = %q", got["email"])
	}
	if got["company"] != "Acme" {
		t.Errorf("company = %q", got["company"])
	}
}
