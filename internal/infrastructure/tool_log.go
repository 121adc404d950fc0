package infrastructure

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// shellSpecialChars are the characters that force quoting in a logged command line
const shellSpecialChars = " \t\n\r'\"$`\\!*?[](){}|;<>&~#%"

// ToolLog appends external tool runs to logs/download-YYYYMMDD.log. Every run is
// framed by a header with the command line and a SUCCESS/FAILED footer.
type ToolLog struct {
	dir string
	now func() time.Time
	mu  sync.Mutex
}

// NewToolLog creates a tool log writing into dir
func NewToolLog(dir string) *ToolLog {
	return &ToolLog{dir: dir, now: time.Now}
}

// ToolRun is one framed section of the tool log. Tool output written to it goes
// straight to the file.
type ToolRun struct {
	log  *ToolLog
	file *os.File
}

// Begin opens today's file and writes the run header
func (l *ToolLog) Begin(runID, binary string, args []string) (*ToolRun, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := filepath.Join(l.dir, "download-"+l.now().Format("20060102")+".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open tool log: %w", err)
	}

	run := &ToolRun{log: l, file: f}
	run.writef("\n=== [%s] Download: %s ===\n$ %s\n", l.stamp(), runID, ShellEscapeCommand(binary, args...))
	return run, nil
}

// Writer returns the destination for the tool's stdout and stderr
func (r *ToolRun) Writer() io.Writer {
	return r.file
}

// End writes the footer and closes the file
func (r *ToolRun) End(success bool, message string) error {
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	r.writef("[%s] %s: %s\n=== END ===\n\n", r.log.stamp(), status, message)
	return r.file.Close()
}

func (r *ToolRun) writef(format string, args ...interface{}) {
	r.log.mu.Lock()
	defer r.log.mu.Unlock()
	fmt.Fprintf(r.file, format, args...)
}

func (l *ToolLog) stamp() string {
	return l.now().Format("2006-01-02 15:04:05")
}

// ShellEscape quotes s for display in a shell command line. Only used for
// logging; exec.Command takes arguments verbatim.
func ShellEscape(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, shellSpecialChars) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// ShellEscapeCommand renders binary and args as a copy-pasteable command line
func ShellEscapeCommand(binary string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, ShellEscape(binary))
	for _, arg := range args {
		parts = append(parts, ShellEscape(arg))
	}
	return strings.Join(parts, " ")
}
