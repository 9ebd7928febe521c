package sable

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/sablehttp/sable/internal/h1"
)

func testContext(method, path string, headers [][2]string) *Context {
	req := &h1.Request{
		Method:  method,
		Path:    path,
		Headers: headers,
	}
	return newContext(context.Background(), req, nil)
}

func TestContextRequestAccessors(t *testing.T) {
	c := testContext("POST", "/items", [][2]string{
		{"Host", "example.com"},
		{"Content-Type", "application/json"},
	})
	c.req.Host = "example.com"
	c.req.Body = []byte(`{"a":1}`)
	c.req.KeepAlive = true

	if c.Method() != "POST" {
		t.Errorf("Method = %q, want POST", c.Method())
	}
	if c.Path() != "/items" {
		t.Errorf("Path = %q, want /items", c.Path())
	}
	if c.Host() != "example.com" {
		t.Errorf("Host = %q, want example.com", c.Host())
	}
	if got := c.Header("content-type"); got != "application/json" {
		t.Errorf("Header(content-type) = %q, want application/json", got)
	}
	if string(c.Body()) != `{"a":1}` {
		t.Errorf("Body = %q", c.Body())
	}
	if !c.KeepAlive() {
		t.Error("Expected KeepAlive true")
	}
}

func TestContextValues(t *testing.T) {
	c := testContext("GET", "/", nil)

	if _, ok := c.Get("missing"); ok {
		t.Error("Expected missing key to report false")
	}
	c.Set("user", "alice")
	v, ok := c.Get("user")
	if !ok || v != "alice" {
		t.Errorf("Get(user) = %v, %v", v, ok)
	}
}

func TestContextString(t *testing.T) {
	c := testContext("GET", "/", nil)

	if err := c.String(201, "created"); err != nil {
		t.Fatalf("String error = %v", err)
	}
	if c.Status() != 201 {
		t.Errorf("Status = %d, want 201", c.Status())
	}
	if got := c.ResponseHeader("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if c.responseBody.String() != "created" {
		t.Errorf("Body = %q, want created", c.responseBody.String())
	}
}

func TestContextJSON(t *testing.T) {
	c := testContext("GET", "/", nil)

	if err := c.JSON(200, map[string]int{"n": 42}); err != nil {
		t.Fatalf("JSON error = %v", err)
	}
	if got := c.ResponseHeader("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	var decoded map[string]int
	if err := json.Unmarshal(c.responseBody.Bytes(), &decoded); err != nil {
		t.Fatalf("Body not valid JSON: %v", err)
	}
	if decoded["n"] != 42 {
		t.Errorf("Decoded = %v", decoded)
	}
}

func TestContextNoContent(t *testing.T) {
	c := testContext("DELETE", "/x", nil)

	if err := c.NoContent(204); err != nil {
		t.Fatalf("NoContent error = %v", err)
	}
	if c.Status() != 204 {
		t.Errorf("Status = %d, want 204", c.Status())
	}
	if c.responseBody.Len() != 0 {
		t.Errorf("Expected empty body, got %d bytes", c.responseBody.Len())
	}
}

func TestSetHeaderReplaces(t *testing.T) {
	c := testContext("GET", "/", nil)

	c.SetHeader("X-Version", "1")
	c.SetHeader("X-Version", "2")

	if got := c.ResponseHeader("X-Version"); got != "2" {
		t.Errorf("X-Version = %q, want 2", got)
	}
	count := 0
	for _, h := range c.responseHeaders {
		if h[0] == "X-Version" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Expected a single X-Version header, got %d", count)
	}
}

func TestContextReuseAfterRelease(t *testing.T) {
	c := testContext("GET", "/old", nil)
	c.Set("key", "value")
	c.SetStatus(404)
	_ = c.String(404, "gone")
	c.release()

	c2 := testContext("GET", "/new", nil)
	defer c2.release()

	if c2.Status() != 200 {
		t.Errorf("Recycled context status = %d, want 200", c2.Status())
	}
	if c2.responseBody.Len() != 0 {
		t.Errorf("Recycled context carried %d body bytes", c2.responseBody.Len())
	}
	if _, ok := c2.Get("key"); ok {
		t.Error("Recycled context carried a stored value")
	}
	if len(c2.responseHeaders) != 0 {
		t.Errorf("Recycled context carried %d headers", len(c2.responseHeaders))
	}
}
