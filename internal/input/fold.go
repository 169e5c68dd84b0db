package input

import (
	"strings"

	"logrelay/internal/relay"
)

// Folder assembles multi-line records. Continuation lines are appended to
// the pending event's Failure; the pending event is emitted when the next
// record starts or on Flush.
//
// Folder is not safe for concurrent use.
type Folder struct {
	def  Defaults
	emit func(relay.Event)

	pending     *relay.Event
	inTraceback bool
	// lastIndented tracks whether the previous continuation was an indented
	// frame, so the unindented exception summary that ends a Python
	// traceback is folded too.
	lastIndented bool
}

func NewFolder(def Defaults, emit func(relay.Event)) *Folder {
	return &Folder{def: def.normalized(), emit: emit}
}

// Push consumes one line.
func (f *Folder) Push(line string) {
	line = strings.TrimRight(line, "\r\n")

	if f.pending != nil {
		switch {
		case IsContinuation(line):
			f.appendFailure(line)
			if strings.HasPrefix(line, "Traceback ") {
				f.inTraceback = true
			}
			f.lastIndented = line[0] == ' ' || line[0] == '\t'
			return
		case f.inTraceback && f.lastIndented && looksLikeExceptionSummary(line):
			f.appendFailure(line)
			f.inTraceback = false
			f.lastIndented = false
			return
		}
	}

	ev, ok := ParseLine(line, f.def)
	if !ok {
		return
	}
	f.Flush()
	f.pending = &ev
	f.inTraceback = strings.HasPrefix(line, "Traceback ")
	f.lastIndented = false
}

// Pending reports whether an event is buffered.
func (f *Folder) Pending() bool { return f.pending != nil }

// Flush emits the buffered event, if any.
func (f *Folder) Flush() {
	if f.pending == nil {
		return
	}
	ev := *f.pending
	f.pending = nil
	f.inTraceback = false
	f.lastIndented = false
	if f.emit != nil {
		f.emit(ev)
	}
}

func (f *Folder) appendFailure(line string) {
	if f.pending.Failure == "" {
		f.pending.Failure = line
		return
	}
	f.pending.Failure += "\n" + line
}

// looksLikeExceptionSummary matches "SomeError: text" and bare "SomeError".
func looksLikeExceptionSummary(line string) bool {
	head, _, _ := strings.Cut(line, ":")
	head = strings.TrimSpace(head)
	if head == "" || strings.ContainsAny(head, " \t") {
		return false
	}
	return strings.HasSuffix(head, "Error") || strings.HasSuffix(head, "Exception") ||
		strings.HasSuffix(head, "Interrupt") || strings.HasSuffix(head, "Exit")
}
