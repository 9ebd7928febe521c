package h1

import (
	"log"
	"strconv"
	"sync"

	"github.com/sablehttp/sable/internal/date"
)

// controller is the non-owning back-reference from a ResponseWriter to the
// connection that owns it. The connection is the sole owner of both the
// request and the response; the writer only looks up this surface to issue
// writes and to recycle or close once a response is finalized.
type controller interface {
	Write(p []byte) error
	KeepAlive()
	Drain()
	Close() error
	IsKeepAlive() bool
}

// Pre-allocated header fragments to avoid allocations on the hot path.
var (
	statusLine200       = []byte("HTTP/1.1 200 OK\r\n")
	headerContentLength = []byte("Content-Length: ")
	headerConnection    = []byte("Connection: ")
	headerKeepAlive     = []byte("keep-alive\r\n")
	headerClose         = []byte("close\r\n")
	headerDate          = []byte("Date: ")
	headerSep           = []byte(": ")
	crlf                = []byte("\r\n")
	chunkEnd            = []byte("0\r\n\r\n")

	responseBufferPool = sync.Pool{
		New: func() any {
			b := make([]byte, 0, 4096)
			return &b
		},
	}
)

// ResponseWriter assembles and sends HTTP/1.1 responses for one
// connection. It is owned by the connection and reset between keep-alive
// exchanges. Finalizing a response hands the keep-alive decision back to
// the connection through the controller.
type ResponseWriter struct {
	ctrl   controller
	logger *log.Logger

	mu          sync.Mutex
	headersSent bool
	chunkedMode bool
	finished    bool
	status      int
	written     int64
}

// NewResponseWriter creates a writer bound to its owning connection.
func NewResponseWriter(ctrl controller, logger *log.Logger) *ResponseWriter {
	return &ResponseWriter{ctrl: ctrl, logger: logger}
}

// WriteResponse writes a response with status, headers and body. The first
// call sends the status line and header block; if endResponse is false and
// no Content-Length was supplied the body is streamed with chunked
// encoding across subsequent calls. When endResponse is true the response
// is finalized and the connection is recycled or closed according to the
// keep-alive contract.
func (w *ResponseWriter) WriteResponse(status int, headers [][2]string, body []byte, endResponse bool) error {
	w.mu.Lock()

	if !w.headersSent {
		keepAlive := w.ctrl.IsKeepAlive()

		bufPtr := responseBufferPool.Get().(*[]byte)
		buf := (*bufPtr)[:0]

		if status == 200 {
			buf = append(buf, statusLine200...)
		} else {
			buf = append(buf, "HTTP/1.1 "...)
			buf = strconv.AppendInt(buf, int64(status), 10)
			buf = append(buf, ' ')
			buf = append(buf, statusText(status)...)
			buf = append(buf, crlf...)
		}

		buf = append(buf, headerDate...)
		buf = append(buf, date.Current()...)
		buf = append(buf, crlf...)

		hasContentLength := false
		for _, h := range headers {
			if asciiEqualFoldStrings(h[0], "Content-Length") {
				hasContentLength = true
				break
			}
		}

		switch {
		case endResponse && !hasContentLength:
			buf = append(buf, headerContentLength...)
			buf = strconv.AppendInt(buf, int64(len(body)), 10)
			buf = append(buf, crlf...)
		case !endResponse && !hasContentLength:
			buf = append(buf, "Transfer-Encoding: chunked\r\n"...)
			w.chunkedMode = true
		}

		for _, h := range headers {
			buf = append(buf, h[0]...)
			buf = append(buf, headerSep...)
			buf = append(buf, h[1]...)
			buf = append(buf, crlf...)
		}

		buf = append(buf, headerConnection...)
		if keepAlive {
			buf = append(buf, headerKeepAlive...)
		} else {
			buf = append(buf, headerClose...)
		}
		buf = append(buf, crlf...)

		if len(body) > 0 {
			if w.chunkedMode {
				buf = appendChunk(buf, body)
			} else {
				buf = append(buf, body...)
			}
		}

		w.headersSent = true
		w.status = status
		w.written += int64(len(body))

		err := w.ctrl.Write(buf)
		if cap(buf) <= 1<<16 {
			*bufPtr = buf[:0]
			responseBufferPool.Put(bufPtr)
		}
		if err != nil && w.logger != nil {
			w.logger.Printf("response write error: %v", err)
		}

		if endResponse {
			w.mu.Unlock()
			return w.End()
		}
		w.mu.Unlock()
		return nil
	}

	// Headers already sent: stream the body.
	if len(body) > 0 {
		var out []byte
		if w.chunkedMode {
			out = appendChunk(nil, body)
		} else {
			out = append([]byte(nil), body...)
		}
		w.written += int64(len(body))
		if err := w.ctrl.Write(out); err != nil && w.logger != nil {
			w.logger.Printf("response write error: %v", err)
		}
	}

	if endResponse {
		w.mu.Unlock()
		return w.End()
	}
	w.mu.Unlock()
	return nil
}

// appendChunk appends one chunked-encoding frame for body to buf.
func appendChunk(buf, body []byte) []byte {
	buf = strconv.AppendInt(buf, int64(len(body)), 16)
	buf = append(buf, crlf...)
	buf = append(buf, body...)
	buf = append(buf, crlf...)
	return buf
}

// End finalizes the response: the chunked terminator is sent if needed,
// unread request body bytes are drained, and the connection is recycled
// for the next request or closed once the keep-alive contract says so.
func (w *ResponseWriter) End() error {
	w.mu.Lock()
	if w.finished {
		w.mu.Unlock()
		return nil
	}
	w.finished = true
	chunked := w.chunkedMode
	w.mu.Unlock()

	if chunked {
		if err := w.ctrl.Write(chunkEnd); err != nil && w.logger != nil {
			w.logger.Printf("response write error: %v", err)
		}
	}

	w.ctrl.Drain()
	if w.ctrl.IsKeepAlive() {
		w.ctrl.KeepAlive()
		return nil
	}
	return w.ctrl.Close()
}

// WriteError sends a plain-text error response and closes the connection.
func (w *ResponseWriter) WriteError(status int, message string) error {
	w.mu.Lock()
	if w.headersSent {
		// Too late for a status line; the connection just closes.
		w.mu.Unlock()
		return w.ctrl.Close()
	}
	body := []byte(message)
	buf := make([]byte, 0, 128+len(body))
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendInt(buf, int64(status), 10)
	buf = append(buf, ' ')
	buf = append(buf, statusText(status)...)
	buf = append(buf, crlf...)
	buf = append(buf, "Content-Type: text/plain; charset=utf-8\r\n"...)
	buf = append(buf, headerContentLength...)
	buf = strconv.AppendInt(buf, int64(len(body)), 10)
	buf = append(buf, crlf...)
	buf = append(buf, headerConnection...)
	buf = append(buf, headerClose...)
	buf = append(buf, crlf...)
	buf = append(buf, body...)

	w.headersSent = true
	w.finished = true
	w.status = status
	w.mu.Unlock()

	if err := w.ctrl.Write(buf); err != nil && w.logger != nil {
		w.logger.Printf("response write error: %v", err)
	}
	return w.ctrl.Close()
}

// Reset clears the writer state for connection reuse.
func (w *ResponseWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.headersSent = false
	w.chunkedMode = false
	w.finished = false
	w.status = 0
	w.written = 0
}

// Status returns the status code sent, or 0 before headers are written.
func (w *ResponseWriter) Status() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// BytesWritten returns the number of body bytes written so far.
func (w *ResponseWriter) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// statusText returns the reason phrase for common HTTP status codes.
func statusText(code int) string {
	switch code {
	case 100:
		return "Continue"
	case 101:
		return "Switching Protocols"
	case 200:
		return "OK"
	case 201:
		return "Created"
	case 202:
		return "Accepted"
	case 204:
		return "No Content"
	case 206:
		return "Partial Content"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 304:
		return "Not Modified"
	case 307:
		return "Temporary Redirect"
	case 308:
		return "Permanent Redirect"
	case 400:
		return "Bad Request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 404:
		return "Not Found"
	case 405:
		return "Method Not Allowed"
	case 408:
		return "Request Timeout"
	case 409:
		return "Conflict"
	case 410:
		return "Gone"
	case 413:
		return "Payload Too Large"
	case 414:
		return "URI Too Long"
	case 415:
		return "Unsupported Media Type"
	case 429:
		return "Too Many Requests"
	case 500:
		return "Internal Server Error"
	case 501:
		return "Not Implemented"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 504:
		return "Gateway Timeout"
	default:
		return "Unknown"
	}
}
