package prompt

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var variablePattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Template is a prompt with {{variable}} placeholders. Values are substituted
// in a single pass, so placeholders inside values are left as written.
type Template struct {
	name string
	text string
	vars []string
}

// Parse checks that text uses exactly the declared variables.
func Parse(name, text string, vars ...string) (*Template, error) {
	found := ExtractVariables(text)
	declared := make(map[string]bool, len(vars))
	for _, v := range vars {
		declared[v] = true
	}

	var undeclared []string
	used := make(map[string]bool, len(found))
	for _, v := range found {
		used[v] = true
		if !declared[v] {
			undeclared = append(undeclared, v)
		}
	}
	if len(undeclared) > 0 {
		return nil, fmt.Errorf("template %s: undeclared variables: %s", name, strings.Join(undeclared, ", "))
	}

	var unused []string
	for _, v := range vars {
		if !used[v] {
			unused = append(unused, v)
		}
	}
	if len(unused) > 0 {
		return nil, fmt.Errorf("template %s: unused variables: %s", name, strings.Join(unused, ", "))
	}

	sorted := append([]string(nil), vars...)
	sort.Strings(sorted)
	return &Template{name: name, text: text, vars: sorted}, nil
}

// MustParse is Parse for package-level templates.
func MustParse(name, text string, vars ...string) *Template {
	t, err := Parse(name, text, vars...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Template) Name() string { return t.name }

func (t *Template) Variables() []string {
	return append([]string(nil), t.vars...)
}

// Render fills every placeholder. A missing value is an error.
func (t *Template) Render(values map[string]string) (string, error) {
	var missing []string
	for _, v := range t.vars {
		if _, ok := values[v]; !ok {
			missing = append(missing, v)
		}
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("render %s: missing variables: %s", t.name, strings.Join(missing, ", "))
	}

	return variablePattern.ReplaceAllStringFunc(t.text, func(match string) string {
		return values[match[2:len(match)-2]] // strip {{ and }}
	}), nil
}

// ExtractVariables returns the distinct variable names in text, in order of first use.
func ExtractVariables(text string) []string {
	matches := variablePattern.FindAllStringSubmatch(text, -1)
	seen := make(map[string]bool)
	var vars []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			vars = append(vars, m[1])
			seen[m[1]] = true
		}
	}
	return vars
}
