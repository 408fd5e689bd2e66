package prompt

import (
	"strings"
	"testing"
)

func TestParseChecksVariables(t *testing.T) {
	if _, err := Parse("ok", "{{a}} and {{b}} and {{a}}", "a", "b"); err != nil {
		t.Fatalf("Parse: %v", err)
	}

	_, err := Parse("extra", "{{a}} {{c}}", "a")
	if err == nil || !strings.Contains(err.Error(), "undeclared variables: c") {
		t.Fatalf("undeclared: err = %v", err)
	}

	_, err = Parse("unused", "{{a}}", "a", "b")
	if err == nil || !strings.Contains(err.Error(), "unused variables: b") {
		t.Fatalf("unused: err = %v", err)
	}
}

func TestRender(t *testing.T) {
	tpl := MustParse("greeting", "Hola {{name}}, tipo {{kind}}.", "name", "kind")

	out, err := tpl.Render(map[string]string{"name": "{{kind}}", "kind": "factura"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if out != "Hola {{kind}}, tipo factura." {
		t.Fatalf("out = %q", out)
	}

	if _, err := tpl.Render(map[string]string{"name": "x"}); err == nil {
		t.Fatal("expected missing variable error")
	}

	if got := strings.Join(tpl.Variables(), ","); got != "kind,name" {
		t.Fatalf("Variables() = %q", got)
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	MustParse("bad", "{{x}}")
}
