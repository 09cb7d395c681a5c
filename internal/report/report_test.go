package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestSuccessShape(t *testing.T) {
	var buf bytes.Buffer
	if err := Success("remote text", "12345").Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	line := buf.String()
	if !strings.HasSuffix(line, "\n") {
		t.Fatalf("report must end with newline: %q", line)
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(line), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["changed"] != true {
		t.Fatalf("changed=%v", decoded["changed"])
	}
	if _, ok := decoded["failed"]; ok {
		t.Fatalf("success report must omit failed")
	}
	if decoded["remote_output"] != "remote text" || decoded["stdout"] != "12345" {
		t.Fatalf("payload=%v", decoded)
	}
	if decoded["rc"] != float64(0) {
		t.Fatalf("rc=%v", decoded["rc"])
	}
}

func TestFailureShape(t *testing.T) {
	var buf bytes.Buffer
	if err := Failure("partial", "timeout after 5s").Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["failed"] != true {
		t.Fatalf("failed=%v", decoded["failed"])
	}
	if _, ok := decoded["changed"]; ok {
		t.Fatalf("failure report must omit changed")
	}
	if decoded["rc"] != float64(1) {
		t.Fatalf("rc=%v", decoded["rc"])
	}
	if decoded["remote_output"] != "partial" {
		t.Fatalf("remote_output=%v", decoded["remote_output"])
	}
}

func TestExitCodeMirrorsRC(t *testing.T) {
	if got := Success("", "ok").ExitCode(); got != 0 {
		t.Fatalf("success exit=%d", got)
	}
	if got := Failure("", "no").ExitCode(); got != 1 {
		t.Fatalf("failure exit=%d", got)
	}
}

func TestEmptyFieldsStayPresent(t *testing.T) {
	var buf bytes.Buffer
	if err := Failure("", "").Write(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	line := buf.String()
	for _, key := range []string{`"remote_output"`, `"stdout"`, `"rc"`} {
		if !strings.Contains(line, key) {
			t.Fatalf("missing %s in %q", key, line)
		}
	}
}
