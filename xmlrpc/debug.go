package xmlrpc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

// DebugLevel controls how much diagnostic detail a Server embeds in its
// responses (spec §6 configuration surface, §7 Observability).
type DebugLevel int

// Debug levels. Each level adds to what the one below it captures:
// DebugUser embeds the trace comments at all (even if empty); DebugRequestDump
// additionally records the raw request body; DebugWarnings additionally
// installs the diagnostics sink around handler invocation.
const (
	DebugOff DebugLevel = iota
	DebugUser
	DebugRequestDump
	DebugWarnings
)

// DiagnosticsSink receives processing warnings captured around a handler
// invocation. The hosting layer passes one in explicitly at debug≥3
// (Engine.ExecuteWithSink) rather than installing a process-wide hook, so
// concurrent requests never cross-contaminate each other's trace (spec §9
// DESIGN NOTES: the re-architected diagnostics sink).
type DiagnosticsSink interface {
	Warn(format string, args ...interface{})
}

// trace accumulates a system trace (pipeline-internal diagnostics) and a
// user trace (handler-facing warnings/fault detail) for a single request.
// It is created fresh per request by the driver and passed down explicitly,
// never stored in a package-level variable, so it carries its own mutex
// only to guard concurrent Warn calls from a handler's own goroutines.
type trace struct {
	mu     sync.Mutex
	system []string
	user   []string
}

func newTrace() *trace { return &trace{} }

// LogSystem records a pipeline-internal diagnostic line (request receipt,
// state transitions, raw request dump).
func (t *trace) LogSystem(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.system = append(t.system, fmt.Sprintf(format, args...))
}

// LogUser records a handler-facing diagnostic line (fault detail, captured
// warnings).
func (t *trace) LogUser(format string, args ...interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.user = append(t.user, fmt.Sprintf(format, args...))
}

// Warn implements DiagnosticsSink by feeding the user trace.
func (t *trace) Warn(format string, args ...interface{}) { t.LogUser(format, args...) }

func (t *trace) systemText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.system, "\n")
}

func (t *trace) userText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.user, "\n")
}

// embedTraceComments prefixes a serialized XML-RPC document with the debug
// trace comments spec §7 requires at debug≥1: one BASE64-encoded system
// trace, one entity-encoded user trace, inserted immediately after the XML
// prologue. The comments are emitted even when empty, so their presence is
// an honest signal that debug was enabled, not just an artifact of a
// trace happening to be non-empty.
func embedTraceComments(doc []byte, level DebugLevel, tr *trace, charsetName string) []byte {
	if level < DebugUser || tr == nil {
		return doc
	}

	prologueEnd := bytes.IndexByte(doc, '\n') + 1
	if prologueEnd <= 0 {
		prologueEnd = 0
	}

	if charsetName == "" {
		charsetName = UTF8
	}
	systemTrace := base64.StdEncoding.EncodeToString([]byte(tr.systemText()))
	userText, err := EncodeEntities(tr.userText(), UTF8, charsetName)
	if err != nil {
		userText = tr.userText()
	}

	var buf bytes.Buffer
	buf.Write(doc[:prologueEnd])
	fmt.Fprintf(&buf, "<!-- systemTrace: %s -->\n", systemTrace)
	fmt.Fprintf(&buf, "<!-- userTrace: %s -->\n", userText)
	buf.Write(doc[prologueEnd:])
	return buf.Bytes()
}
