// Package date provides a cached, thread-safe RFC1123 date value for the
// Date response header, avoiding a time.Format call on every response.
package date

import (
	"sync/atomic"
	"time"
)

var currentDate atomic.Pointer[[]byte]

// StartTicker starts a ticker that refreshes the cached date every 500ms.
// It returns a stop function.
func StartTicker() func() {
	update()

	ticker := time.NewTicker(500 * time.Millisecond)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-ticker.C:
				update()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}

func update() {
	b := []byte(time.Now().UTC().Format(time.RFC1123))
	currentDate.Store(&b)
}

// Current returns the cached date header bytes. Callers must not modify
// the returned slice.
func Current() []byte {
	if p := currentDate.Load(); p != nil {
		return *p
	}
	// Ticker not started yet; fall back to formatting directly.
	return []byte(time.Now().UTC().Format(time.RFC1123))
}
