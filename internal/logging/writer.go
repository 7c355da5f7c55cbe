package logging

import (
	"bytes"
	"log/slog"
	"sync"
)

// Writer is an io.Writer that forwards job output to slog, one record per line.
type Writer struct {
	logger *slog.Logger
	mu     sync.Mutex
	buf    bytes.Buffer
}

// NewWriter constructs a Writer bound to the provided logger.
func NewWriter(logger *slog.Logger) *Writer {
	return &Writer{logger: logger}
}

// Write buffers p and logs every complete line at info level.
func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(line[:len(line)-1])
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *Writer) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

func (w *Writer) emit(line string) {
	if w.logger == nil {
		return
	}
	line = trimCR(line)
	if line != "" {
		w.logger.Info("output", "line", line)
	}
}

func trimCR(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\r' {
		return s[:n-1]
	}
	return s
}
