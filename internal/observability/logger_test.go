package observability

import "testing"

func TestNewLoggerRejectsUnknownFormat(t *testing.T) {
	if _, err := NewLogger("xml", "info"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("text", "trace"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewLoggerDefaults(t *testing.T) {
	logger, err := NewLogger("", "")
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger == nil {
		t.Fatalf("expected non-nil logger")
	}
}
