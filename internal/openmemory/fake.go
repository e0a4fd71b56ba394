package openmemory

import "context"

// Fake is a scriptable Interface implementation for tests, mirroring the
// configure_store_*/configure_search_* builder pattern the original
// Python test suite uses to drive Gateway handler tests without a real
// OpenMemory instance.
type Fake struct {
	storeResult *StoreResult
	storeErr    error
	storeCalls  int

	searchResult *SearchResult
	searchErr    error
	searchCalls  int
}

// ConfigureStoreSuccess makes the next Store calls succeed with memoryID.
func (f *Fake) ConfigureStoreSuccess(memoryID string) {
	f.storeResult = &StoreResult{Success: true, MemoryID: memoryID}
	f.storeErr = nil
}

// ConfigureStoreConnectionError makes Store fail as a transport error.
func (f *Fake) ConfigureStoreConnectionError(msg string) {
	f.storeResult = nil
	f.storeErr = &ConnectionError{Err: errString(msg)}
}

// ConfigureStoreAPIError makes Store fail with an upstream HTTP status.
func (f *Fake) ConfigureStoreAPIError(status int, body string) {
	f.storeResult = nil
	f.storeErr = &APIError{StatusCode: status, Body: body}
}

// ConfigureStoreGenericError makes Store fail with an unclassified error.
func (f *Fake) ConfigureStoreGenericError(msg string) {
	f.storeResult = nil
	f.storeErr = &GenericError{Err: errString(msg)}
}

// ConfigureSearchSuccess makes Search return hits.
func (f *Fake) ConfigureSearchSuccess(hits []SearchHit) {
	f.searchResult = &SearchResult{Success: true, Results: hits}
	f.searchErr = nil
}

// ConfigureSearchConnectionError makes Search fail as a transport error.
func (f *Fake) ConfigureSearchConnectionError(msg string) {
	f.searchResult = nil
	f.searchErr = &ConnectionError{Err: errString(msg)}
}

// ConfigureSearchAPIError makes Search fail with an upstream HTTP status.
func (f *Fake) ConfigureSearchAPIError(status int, body string) {
	f.searchResult = nil
	f.searchErr = &APIError{StatusCode: status, Body: body}
}

func (f *Fake) Store(ctx context.Context, content, space, userID string, tags []string, metadata map[string]any) (*StoreResult, error) {
	f.storeCalls++
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	return f.storeResult, nil
}

func (f *Fake) Search(ctx context.Context, query, userID string, limit int, filters map[string]any) (*SearchResult, error) {
	f.searchCalls++
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResult, nil
}

// StoreCalls reports how many times Store was invoked — P7 asserts this
// stays at 1 across a dedup-hit second store.
func (f *Fake) StoreCalls() int { return f.storeCalls }

// SearchCalls reports how many times Search was invoked.
func (f *Fake) SearchCalls() int { return f.searchCalls }

type errString string

func (e errString) Error() string { return string(e) }

var _ Interface = (*Fake)(nil)
