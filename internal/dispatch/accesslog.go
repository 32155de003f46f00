package dispatch

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"
)

// AccessLog is one JSON line per request, grounded on the teacher's
// handler.AccessLog shape, trimmed of the service/route fields that don't
// exist in this routing model and extended with the resolved host/path
// keys that drove the decision.
type AccessLog struct {
	Time         time.Time `json:"time"`
	Method       string    `json:"method"`
	Path         string    `json:"path"`
	Protocol     string    `json:"protocol"`
	Status       int       `json:"status"`
	DurationMS   int64     `json:"duration_ms"`
	RemoteIP     string    `json:"remote_ip"`
	Port         int       `json:"port"`
	HostKey      string    `json:"host_key,omitempty"`
	PathKey      string    `json:"path_key,omitempty"`
	RuleType     string    `json:"rule_type,omitempty"`
	Upstream     string    `json:"upstream,omitempty"`
	BytesWritten int64     `json:"bytes_written"`
}

func writeAccessLog(w io.Writer, entry AccessLog) {
	if w == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(entry); err != nil {
		log.Printf("dispatch: access log: %v", err)
	}
}

// loggingResponseWriter tracks the status code and byte count actually
// written to the client, mirroring the teacher's handler.loggingResponseWriter.
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
	bytes      int64
}

func (w *loggingResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingResponseWriter) Write(b []byte) (int, error) {
	if w.statusCode == 0 {
		w.statusCode = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *loggingResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *loggingResponseWriter) status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}
