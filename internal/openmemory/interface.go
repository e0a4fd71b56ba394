package openmemory

import "context"

// Interface is the contract the Gateway depends on. *Client implements it
// in production; tests substitute a Fake.
type Interface interface {
	Store(ctx context.Context, content, space, userID string, tags []string, metadata map[string]any) (*StoreResult, error)
	Search(ctx context.Context, query, userID string, limit int, filters map[string]any) (*SearchResult, error)
}

var _ Interface = (*Client)(nil)
