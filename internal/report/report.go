// Package report renders the single structured result object the
// orchestration layer reads from stdout. Exactly one report is written
// per process, success or failure, and the process exit code mirrors
// its rc field.
package report

import (
	"encoding/json"
	"fmt"
	"io"
)

// Report is the invocation result contract. Changed and Failed are
// mutually exclusive; the false one is omitted from the JSON.
type Report struct {
	Changed      bool   `json:"changed,omitempty"`
	Failed       bool   `json:"failed,omitempty"`
	RemoteOutput string `json:"remote_output"`
	Stdout       string `json:"stdout"`
	RC           int    `json:"rc"`
}

// Success builds the report for a call that completed at the transport
// level. The remote value may itself describe a remote-side error;
// that is still a success here.
func Success(remoteOutput, stdout string) Report {
	return Report{Changed: true, RemoteOutput: remoteOutput, Stdout: stdout, RC: 0}
}

// Failure builds the report for any fatal condition. Captured output
// gathered before the failure point is still carried.
func Failure(remoteOutput, stdout string) Report {
	return Report{Failed: true, RemoteOutput: remoteOutput, Stdout: stdout, RC: 1}
}

// Write emits the report as one JSON object followed by a newline.
func (r Report) Write(w io.Writer) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("report: write: %w", err)
	}
	return nil
}

// ExitCode is the process exit status matching the report.
func (r Report) ExitCode() int {
	return r.RC
}
