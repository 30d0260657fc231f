package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(NewWithWriter(&buf, "debug"), "transfers")
	logger.Info("transfer completed", "amount", "100.00")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record["component"] != "transfers" {
		t.Fatalf("expected component tag, got %v", record["component"])
	}
	if record["msg"] != "transfer completed" {
		t.Fatalf("unexpected msg %v", record["msg"])
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "loud")
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug must be filtered at info level, got %s", buf.String())
	}
	logger.Info("shown")
	if buf.Len() == 0 {
		t.Fatalf("info record missing")
	}
}

func TestComponentWithNilLogger(t *testing.T) {
	Component(nil, "cards").Error("dropped")
}
