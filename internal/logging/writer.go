package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// Writer is an io.Writer implementation that forwards command output to slog,
// one record per complete line.
type Writer struct {
	logger *slog.Logger
	msg    string

	mu  sync.Mutex
	buf bytes.Buffer
}

// NewWriter constructs a Writer bound to the provided logger.
func NewWriter(logger *slog.Logger, msg string) *Writer {
	if msg == "" {
		msg = "command output"
	}
	return &Writer{logger: logger, msg: msg}
}

// Write buffers p and logs every complete line at info level.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(line)
	}
	return len(p), nil
}

// Flush logs any buffered partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *Writer) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" || w.logger == nil {
		return
	}
	w.logger.Info(w.msg, "line", line)
}
