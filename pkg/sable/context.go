package sable

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/sablehttp/sable/internal/h1"
)

// Context carries one request/response exchange through the handler
// chain. The response is buffered and flushed in a single write when the
// handler returns, which keeps the connection's keep-alive accounting in
// one place.
type Context struct {
	req *h1.Request
	w   *h1.ResponseWriter

	ctx             context.Context
	statusCode      int
	responseHeaders [][2]string
	responseBody    *bytes.Buffer
	values          map[string]any
	flushed         bool
}

var responseBufPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

var contextPool = sync.Pool{New: func() any { return new(Context) }}

// newContext builds a Context for one exchange.
func newContext(ctx context.Context, req *h1.Request, w *h1.ResponseWriter) *Context {
	c := contextPool.Get().(*Context)
	c.req = req
	c.w = w
	c.ctx = ctx
	c.statusCode = 200
	c.responseHeaders = c.responseHeaders[:0]
	c.responseBody = responseBufPool.Get().(*bytes.Buffer)
	c.responseBody.Reset()
	c.flushed = false
	return c
}

// release returns the context's pooled resources.
func (c *Context) release() {
	if c.responseBody != nil {
		c.responseBody.Reset()
		responseBufPool.Put(c.responseBody)
		c.responseBody = nil
	}
	c.req = nil
	c.w = nil
	c.ctx = nil
	for k := range c.values {
		delete(c.values, k)
	}
	contextPool.Put(c)
}

// Context returns the request-scoped context.Context.
func (c *Context) Context() context.Context {
	return c.ctx
}

// Method returns the request method.
func (c *Context) Method() string {
	return c.req.Method
}

// Path returns the request path.
func (c *Context) Path() string {
	return c.req.Path
}

// Host returns the Host header value.
func (c *Context) Host() string {
	return c.req.Host
}

// Header returns the first value of the named request header.
func (c *Context) Header(name string) string {
	return c.req.Header(name)
}

// Headers returns the raw request header pairs.
func (c *Context) Headers() [][2]string {
	return c.req.Headers
}

// Body returns the request body, or nil if none has arrived.
func (c *Context) Body() []byte {
	return c.req.Body
}

// KeepAlive reports whether the client negotiated connection reuse.
func (c *Context) KeepAlive() bool {
	return c.req.KeepAlive
}

// Set stores a request-scoped value.
func (c *Context) Set(key string, value any) {
	if c.values == nil {
		c.values = make(map[string]any, 8)
	}
	c.values[key] = value
}

// Get retrieves a request-scoped value.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Status returns the status code that will be (or was) sent.
func (c *Context) Status() int {
	return c.statusCode
}

// SetStatus sets the response status code.
func (c *Context) SetStatus(code int) {
	c.statusCode = code
}

// SetHeader sets a response header, replacing any existing value.
func (c *Context) SetHeader(key, value string) {
	for i := range c.responseHeaders {
		if c.responseHeaders[i][0] == key {
			c.responseHeaders[i][1] = value
			return
		}
	}
	c.responseHeaders = append(c.responseHeaders, [2]string{key, value})
}

// ResponseHeader returns a response header value set so far.
func (c *Context) ResponseHeader(key string) string {
	for i := range c.responseHeaders {
		if c.responseHeaders[i][0] == key {
			return c.responseHeaders[i][1]
		}
	}
	return ""
}

// String sends a plain-text response.
func (c *Context) String(status int, s string) error {
	c.statusCode = status
	c.SetHeader("Content-Type", "text/plain; charset=utf-8")
	c.responseBody.Reset()
	_, err := c.responseBody.WriteString(s)
	return err
}

// JSON sends a JSON response.
func (c *Context) JSON(status int, v any) error {
	c.statusCode = status
	c.SetHeader("Content-Type", "application/json")
	c.responseBody.Reset()
	return json.NewEncoder(c.responseBody).Encode(v)
}

// Blob sends raw bytes with the given content type.
func (c *Context) Blob(status int, contentType string, body []byte) error {
	c.statusCode = status
	c.SetHeader("Content-Type", contentType)
	c.responseBody.Reset()
	_, err := c.responseBody.Write(body)
	return err
}

// NoContent sends a bodiless response.
func (c *Context) NoContent(status int) error {
	c.statusCode = status
	c.responseBody.Reset()
	return nil
}

// flush finalizes the buffered response onto the wire. It is a no-op if
// the response was already flushed.
func (c *Context) flush() error {
	if c.flushed {
		return nil
	}
	c.flushed = true
	body := c.responseBody.Bytes()
	if c.ResponseHeader("Content-Length") == "" {
		c.SetHeader("Content-Length", strconv.Itoa(len(body)))
	}
	return c.w.WriteResponse(c.statusCode, c.responseHeaders, body, true)
}
