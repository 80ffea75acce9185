package logging

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("chatty"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewAndSlog(t *testing.T) {
	logger, err := New("debug")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	Slog(logger).Info("bridged", "key", "value")
}
