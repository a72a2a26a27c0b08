package storage

import (
	"context"
	"testing"
	"time"
)

// testContext returns a context that expires with the test, bounded so a
// hung database call fails fast instead of stalling the suite.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	t.Cleanup(cancel)
	return ctx
}
