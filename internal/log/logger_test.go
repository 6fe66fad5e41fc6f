package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestComponentAttachedOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Handler: slog.NewTextHandler(&buf, nil),
	}).WithComponent(ComponentHTTP)

	logger.Info("request started", FieldMethod, "GET")

	out := buf.String()
	if got := strings.Count(out, FieldComponent+"="); got != 1 {
		t.Fatalf("expected exactly one component attribute, got %d in %q", got, out)
	}
	if !strings.Contains(out, FieldComponent+"="+ComponentHTTP) {
		t.Fatalf("expected component=%s in %q", ComponentHTTP, out)
	}
}

func TestWithComponentRescopes(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Handler: slog.NewTextHandler(&buf, nil)})

	logger.WithComponent(ComponentStorage).Info("first")
	logger.WithComponent(ComponentWorker).Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 records, got %d", len(lines))
	}
	if !strings.Contains(lines[0], FieldComponent+"="+ComponentStorage) {
		t.Errorf("first record missing storage component: %q", lines[0])
	}
	if !strings.Contains(lines[1], FieldComponent+"="+ComponentWorker) {
		t.Errorf("second record missing worker component: %q", lines[1])
	}
	if strings.Contains(lines[1], ComponentStorage) {
		t.Errorf("second record leaked the earlier component: %q", lines[1])
	}
}
