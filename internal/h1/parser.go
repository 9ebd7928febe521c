// Package h1 implements the HTTP/1.1 side of the server: an incremental
// request parser, a response writer, and the per-connection lifecycle
// handler that ties them to the gnet event loop.
package h1

import (
	"bytes"
	"fmt"
	"strconv"
)

// Phase is the parser's report after consuming a chunk of input.
type Phase int

const (
	// PhaseError means the input violated the HTTP/1.1 grammar. The parser
	// stays in this state until Reset is called.
	PhaseError Phase = iota
	// PhaseInitial means the parser is still accumulating bytes and has not
	// reached a message boundary.
	PhaseInitial
	// PhaseHeadersComplete means a full header block was recognized but the
	// body has not fully arrived. The connection should close afterwards.
	PhaseHeadersComplete
	// PhaseMessageComplete means a full request was recognized and the
	// connection should close afterwards.
	PhaseMessageComplete
	// PhaseHeadersCompleteKeepAlive is PhaseHeadersComplete with the client
	// having negotiated connection reuse.
	PhaseHeadersCompleteKeepAlive
	// PhaseMessageCompleteKeepAlive is PhaseMessageComplete with the client
	// having negotiated connection reuse.
	PhaseMessageCompleteKeepAlive
	// PhaseReset means the parser still holds a completed message and
	// refuses further parsing until Reset is called.
	PhaseReset
)

// String returns a short name for the phase, for logs and tests.
func (p Phase) String() string {
	switch p {
	case PhaseError:
		return "error"
	case PhaseInitial:
		return "initial"
	case PhaseHeadersComplete:
		return "headersComplete"
	case PhaseMessageComplete:
		return "messageComplete"
	case PhaseHeadersCompleteKeepAlive:
		return "headersCompleteKeepAlive"
	case PhaseMessageCompleteKeepAlive:
		return "messageCompleteKeepAlive"
	case PhaseReset:
		return "reset"
	}
	return "unknown"
}

var crlfBytes = []byte("\r\n")

// Parser is an incremental HTTP/1.1 request parser. It owns a buffer of
// not-yet-consumed bytes, so callers can feed arbitrarily fragmented chunks
// and re-use the parser across keep-alive exchanges: Reset clears message
// progress but keeps unconsumed bytes (the start of a pipelined request)
// and any drain debt from an unread body.
type Parser struct {
	avail []byte

	headersDone   bool
	done          bool
	errored       bool
	bodyRemaining int64
	chunked       bool
	chunkBuf      bytes.Buffer

	// skip counts body bytes of a drained request that have not arrived
	// yet. They are discarded before any further parsing.
	skip int64
}

// NewParser creates a parser ready for the first request on a connection.
func NewParser() *Parser {
	return &Parser{}
}

// Parse appends chunk to the available data and advances as far as it can.
// A nil chunk re-examines buffered data only, which is how leftover bytes
// of a pipelined request are picked up after a recycle.
func (p *Parser) Parse(req *Request, chunk []byte) Phase {
	p.avail = append(p.avail, chunk...)

	if p.skip > 0 {
		n := p.skip
		if int64(len(p.avail)) < n {
			n = int64(len(p.avail))
		}
		p.avail = p.avail[n:]
		p.skip -= n
		if p.skip > 0 || len(p.avail) == 0 {
			return PhaseInitial
		}
	}

	if p.errored {
		return PhaseError
	}
	if p.done {
		return PhaseReset
	}

	if !p.headersDone {
		consumed, err := p.parseHead(req)
		if err != nil {
			p.errored = true
			return PhaseError
		}
		if consumed == 0 {
			return PhaseInitial
		}
		p.avail = p.avail[consumed:]
		p.headersDone = true
		req.HeadersComplete = true
		p.chunked = req.ChunkedEncoding
		if !p.chunked && req.ContentLength > 0 {
			p.bodyRemaining = req.ContentLength
		}
	}

	return p.parseBody(req)
}

// Buffered returns the number of bytes held but not yet consumed.
func (p *Parser) Buffered() int {
	return len(p.avail)
}

// Reset clears message progress for the next request on the connection.
// Unconsumed bytes and drain debt survive: they belong to the byte stream,
// not to the message that just finished.
func (p *Parser) Reset() {
	p.headersDone = false
	p.done = false
	p.errored = false
	p.bodyRemaining = 0
	p.chunked = false
	p.chunkBuf.Reset()
}

// Drain discards the unread remainder of the current request's body so the
// connection can be recycled without waiting for the client to finish
// sending. Bytes already buffered are dropped now; bytes still in flight
// are recorded as debt and discarded on arrival. A chunked body has no
// declared length, so draining one drops what is buffered and ends the
// message; callers should not reuse the connection in that case.
func (p *Parser) Drain() {
	if !p.headersDone || p.done {
		return
	}
	if p.chunked {
		p.avail = p.avail[:0]
		p.chunkBuf.Reset()
		p.done = true
		return
	}
	buffered := p.bodyRemaining
	if int64(len(p.avail)) < buffered {
		buffered = int64(len(p.avail))
	}
	p.avail = p.avail[buffered:]
	p.skip = p.bodyRemaining - buffered
	p.bodyRemaining = 0
	p.done = true
}

// parseHead parses the request line and header block from the front of the
// buffer. It returns the number of bytes consumed, zero when more data is
// needed, or an error on malformed input.
func (p *Parser) parseHead(req *Request) (int, error) {
	lineEnd := bytes.Index(p.avail, crlfBytes)
	if lineEnd == -1 {
		return 0, nil
	}
	line := p.avail[:lineEnd]
	pos := lineEnd + 2

	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid request line")
	}
	method := string(parts[0])
	path := string(parts[1])
	version := string(parts[2])
	if version != "HTTP/1.1" && version != "HTTP/1.0" {
		return 0, fmt.Errorf("unsupported HTTP version: %s", version)
	}

	headers := req.Headers[:0]
	host := ""
	contentLength := int64(0)
	chunked := false
	keepAlive := version == "HTTP/1.1"

	for {
		lineEnd := bytes.Index(p.avail[pos:], crlfBytes)
		if lineEnd == -1 {
			return 0, nil
		}
		line := p.avail[pos : pos+lineEnd]
		pos += lineEnd + 2
		if len(line) == 0 {
			break
		}
		colonIdx := bytes.IndexByte(line, ':')
		if colonIdx <= 0 {
			return 0, fmt.Errorf("invalid header line")
		}
		rawName := bytes.TrimSpace(line[:colonIdx])
		rawValue := bytes.TrimSpace(line[colonIdx+1:])
		headers = append(headers, [2]string{string(rawName), string(rawValue)})

		switch {
		case asciiEqualFold(rawName, "Host"):
			host = string(rawValue)
		case asciiEqualFold(rawName, "Content-Length"):
			cl, ok := parseInt64Bytes(rawValue)
			if !ok {
				return 0, fmt.Errorf("invalid content-length")
			}
			contentLength = cl
		case asciiEqualFold(rawName, "Transfer-Encoding"):
			if asciiContainsFoldBytes(rawValue, "chunked") {
				chunked = true
			}
		case asciiEqualFold(rawName, "Connection"):
			if asciiContainsFoldBytes(rawValue, "close") {
				keepAlive = false
			} else if asciiContainsFoldBytes(rawValue, "keep-alive") {
				keepAlive = true
			}
		}
	}

	req.Method = method
	req.Path = path
	req.Version = version
	req.Headers = headers
	req.Host = host
	req.ContentLength = contentLength
	req.ChunkedEncoding = chunked
	req.KeepAlive = keepAlive
	return pos, nil
}

// parseBody consumes body bytes after the header block. It reports a
// headers-complete phase when the body has not fully arrived yet.
func (p *Parser) parseBody(req *Request) Phase {
	switch {
	case p.chunked:
		for {
			chunk, consumed, err := p.parseChunk()
			if err != nil {
				p.errored = true
				return PhaseError
			}
			if consumed == 0 {
				return p.headersPhase(req)
			}
			p.avail = p.avail[consumed:]
			if chunk == nil {
				req.Body = append([]byte(nil), p.chunkBuf.Bytes()...)
				return p.complete(req)
			}
			p.chunkBuf.Write(chunk)
		}
	case p.bodyRemaining > 0:
		if int64(len(p.avail)) < p.bodyRemaining {
			return p.headersPhase(req)
		}
		req.Body = append([]byte(nil), p.avail[:p.bodyRemaining]...)
		p.avail = p.avail[p.bodyRemaining:]
		p.bodyRemaining = 0
		return p.complete(req)
	default:
		return p.complete(req)
	}
}

func (p *Parser) complete(req *Request) Phase {
	p.done = true
	if req.KeepAlive {
		return PhaseMessageCompleteKeepAlive
	}
	return PhaseMessageComplete
}

func (p *Parser) headersPhase(req *Request) Phase {
	if req.KeepAlive {
		return PhaseHeadersCompleteKeepAlive
	}
	return PhaseHeadersComplete
}

// parseChunk parses one chunk of a chunked body from the front of the
// buffer. It returns (nil, n, nil) for the terminal zero-size chunk and
// (nil, 0, nil) when more data is needed.
func (p *Parser) parseChunk() ([]byte, int, error) {
	lineEnd := bytes.Index(p.avail, crlfBytes)
	if lineEnd == -1 {
		return nil, 0, nil
	}
	sizeLine := p.avail[:lineEnd]
	pos := lineEnd + 2

	if semiIdx := bytes.IndexByte(sizeLine, ';'); semiIdx != -1 {
		sizeLine = sizeLine[:semiIdx]
	}
	size, err := strconv.ParseInt(string(bytes.TrimSpace(sizeLine)), 16, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid chunk size: %w", err)
	}
	if size < 0 {
		// ParseInt accepts a sign; a negative size would slice backwards.
		return nil, 0, fmt.Errorf("invalid chunk size: %d", size)
	}

	if size == 0 {
		// Terminal chunk, consume the trailing CRLF too.
		if pos+2 > len(p.avail) {
			return nil, 0, nil
		}
		return nil, pos + 2, nil
	}

	if pos+int(size)+2 > len(p.avail) {
		return nil, 0, nil
	}
	chunk := p.avail[pos : pos+int(size)]
	return chunk, pos + int(size) + 2, nil
}

// asciiEqualFold reports whether b equals s under ASCII case-insensitive comparison.
func asciiEqualFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		cb := b[i]
		cs := s[i]
		if 'A' <= cb && cb <= 'Z' {
			cb |= 0x20
		}
		if 'A' <= cs && cs <= 'Z' {
			cs |= 0x20
		}
		if cb != cs {
			return false
		}
	}
	return true
}

// asciiContainsFoldBytes reports whether b contains sub (ASCII case-insensitive).
func asciiContainsFoldBytes(b []byte, sub string) bool {
	if len(sub) == 0 {
		return true
	}
	m := len(sub)
	if m > len(b) {
		return false
	}
	for i := 0; i <= len(b)-m; i++ {
		match := true
		for j := 0; j < m; j++ {
			cb := b[i+j]
			cs := sub[j]
			if 'A' <= cb && cb <= 'Z' {
				cb |= 0x20
			}
			if 'A' <= cs && cs <= 'Z' {
				cs |= 0x20
			}
			if cb != cs {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

// parseInt64Bytes parses a base-10 int64 from ASCII bytes, returning ok=false on error.
func parseInt64Bytes(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var n int64
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		d := int64(c - '0')
		if n > ((1<<63-1)-d)/10 {
			return 0, false
		}
		n = n*10 + d
	}
	return n, true
}
