package h1

// Request accumulates one parsed HTTP/1.1 request. A single instance is
// owned by its connection and reset between keep-alive exchanges.
type Request struct {
	Method  string
	Path    string
	Version string
	Headers [][2]string
	Host    string
	// Body handling
	ContentLength   int64
	ChunkedEncoding bool
	KeepAlive       bool
	HeadersComplete bool
	Body            []byte
}

// Reset clears the request fields for reuse on the same connection.
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Version = ""
	r.Headers = r.Headers[:0]
	r.Host = ""
	r.ContentLength = 0
	r.ChunkedEncoding = false
	r.KeepAlive = false
	r.HeadersComplete = false
	r.Body = nil
}

// Header returns the first value of the named header, matched
// case-insensitively, or "" if absent.
func (r *Request) Header(name string) string {
	for i := range r.Headers {
		if asciiEqualFoldStrings(r.Headers[i][0], name) {
			return r.Headers[i][1]
		}
	}
	return ""
}

// asciiEqualFoldStrings reports whether a equals b under ASCII case folding.
func asciiEqualFoldStrings(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca := a[i]
		cb := b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca |= 0x20
		}
		if 'A' <= cb && cb <= 'Z' {
			cb |= 0x20
		}
		if ca != cb {
			return false
		}
	}
	return true
}
