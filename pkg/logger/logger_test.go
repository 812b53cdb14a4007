package logger

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(log.New(&buf, "", 0))
	t.Cleanup(func() {
		SetOutput(log.New(os.Stderr, "", log.LstdFlags))
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelWarn)

	Info("quiet")
	Warn("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") {
		t.Error("info should be filtered below warn level")
	}
	if !strings.Contains(out, "[WARN] loud") {
		t.Errorf("warn missing from output: %q", out)
	}
}

func TestComponentAndFields(t *testing.T) {
	buf := capture(t)
	SetLevel(LevelDebug)

	DebugCF("hypergraph", "build finished", map[string]interface{}{
		"nodes": 5,
		"edges": 3,
	})
	out := buf.String()
	if !strings.Contains(out, "[DEBUG] [hypergraph] build finished") {
		t.Errorf("header malformed: %q", out)
	}
	if !strings.Contains(out, "edges=3 nodes=5") {
		t.Errorf("fields should be sorted by key: %q", out)
	}
}
