package logger

import (
	"testing"

	"crm-agent-pipeline/internal/config"
)

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "chatty", Format: "json", Output: "stdout"})
	if err == nil {
		t.Fatal("expected an error for an unknown log level")
	}
}

func TestPairFields(t *testing.T) {
	fields := pairFields([]interface{}{"workflow_id", "wf-1", "attempt", 2})
	if fields["workflow_id"] != "wf-1" {
		t.Fatalf("workflow_id = %v", fields["workflow_id"])
	}
	if fields["attempt"] != 2 {
		t.Fatalf("attempt = %v", fields["attempt"])
	}
}

func TestPairFieldsOddTrailingValue(t *testing.T) {
	fields := pairFields([]interface{}{"key", "value", "dangling"})
	if fields["extra"] != "dangling" {
		t.Fatalf("dangling value should land under extra, got %v", fields)
	}
}

func TestPairFieldsNonStringKey(t *testing.T) {
	fields := pairFields([]interface{}{42, "answer"})
	if fields["42"] != "answer" {
		t.Fatalf("non-string keys should be stringified, got %v", fields)
	}
}
