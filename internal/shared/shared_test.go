package shared

import (
	"bytes"
	"strings"
	"testing"
)

func TestGenerateID(t *testing.T) {
	a := GenerateID()
	b := GenerateID()

	if a == "" || b == "" {
		t.Fatal("expected non-empty ids")
	}
	if a == b {
		t.Errorf("expected unique ids, got %s twice", a)
	}
	if len(strings.Split(a, "-")) != 5 {
		t.Errorf("expected uuid shape, got %s", a)
	}
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	child := ComponentLogger(logger, "manager")
	child.Info("state updated")

	if !strings.Contains(buf.String(), "component") {
		t.Errorf("expected component tag in output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "manager") {
		t.Errorf("expected component name in output, got %q", buf.String())
	}
}
