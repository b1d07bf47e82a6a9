package api

import (
	"context"
	"time"
)

// QueryTimeout bounds a single mongo round trip. Engine operations issue
// several sequential reads and writes, so handlers derive one context per
// request and every store call shares the same deadline.
const QueryTimeout = 10 * time.Second

// WithQueryTimeout derives a context carrying the query deadline. A nil
// parent is tolerated so background jobs can call it too.
func WithQueryTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, QueryTimeout)
}
