package gateway

import (
	"context"
	"strconv"

	"github.com/onlyfeng/engram-gateway/internal/logbook"
	"github.com/onlyfeng/engram-gateway/internal/openmemory"
)

func formatCandidateID(id int64) string {
	return "kc_" + strconv.FormatInt(id, 10)
}

// QueryRequest is memory_query's public input.
type QueryRequest struct {
	Query   string         `json:"query" validate:"required"`
	UserID  string         `json:"user_id,omitempty"`
	TopK    int            `json:"top_k,omitempty"`
	Spaces  []string       `json:"spaces,omitempty"`
	Filters map[string]any `json:"filters,omitempty"`
}

// QueryHit is one result row, regardless of which backend served it.
type QueryHit struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Title        string         `json:"title,omitempty"`
	Kind         string         `json:"kind,omitempty"`
	Confidence   float64        `json:"confidence,omitempty"`
	EvidenceRefs map[string]any `json:"evidence_refs,omitempty"`
	CreatedAt    string         `json:"created_at,omitempty"`
	Source       string         `json:"source"` // provider name | logbook_fallback
}

// QueryResponse is memory_query's output.
type QueryResponse struct {
	OK             bool       `json:"ok"`
	Results        []QueryHit `json:"results"`
	Total          int        `json:"total"`
	SpacesSearched []string   `json:"spaces_searched"`
	Degraded       bool       `json:"degraded"`
	Message        string     `json:"message,omitempty"`
	CorrelationID  string     `json:"correlation_id"`
}

const defaultQueryTopK = 10

// MemoryQuery searches OpenMemory first and falls back to the read-only
// knowledge_candidate table when OpenMemory is unreachable or erroring,
// per SPEC_FULL.md §4.6.
func (g *Gateway) MemoryQuery(ctx context.Context, correlationID string, req QueryRequest) (QueryResponse, error) {
	if req.Query == "" {
		return QueryResponse{}, &MissingParamError{Field: "query"}
	}

	topK := req.TopK
	if topK <= 0 {
		topK = defaultQueryTopK
	}

	// Step 1: resolve spaces — default to the deployment's team space.
	spaces := req.Spaces
	if len(spaces) == 0 {
		spaces = []string{g.deps.Config.DefaultTeamSpace}
	}

	filters := req.Filters
	if filters == nil {
		filters = map[string]any{}
	}
	filters["spaces"] = spaces

	// Step 2-3: OpenMemory search, straight pass-through on success.
	result, err := g.deps.OpenMemory.Search(ctx, req.Query, req.UserID, topK, filters)
	if err == nil && result != nil && result.Success {
		hits := toOpenMemoryHits(result.Results)
		return QueryResponse{
			OK:             true,
			Results:        hits,
			Total:          len(hits),
			SpacesSearched: spaces,
			CorrelationID:  correlationID,
		}, nil
	}

	// Step 4: degraded fallback to the logbook's read-only candidate table.
	primaryErr := "openmemory search failed"
	if err != nil {
		primaryErr = err.Error()
	} else if result != nil && result.Error != "" {
		primaryErr += ": " + result.Error
	}
	candidates, cErr := g.deps.Logbook.QueryKnowledgeCandidates(ctx, req.Query, topK, spaces[0])
	if cErr != nil {
		// Step 5: both backends failed.
		return QueryResponse{
			OK:             false,
			Results:        []QueryHit{},
			SpacesSearched: spaces,
			Degraded:       true,
			Message:        primaryErr + "; " + cErr.Error(),
			CorrelationID:  correlationID,
		}, nil
	}

	hits := toCandidateHits(candidates)
	return QueryResponse{
		OK:             true,
		Results:        hits,
		Total:          len(hits),
		SpacesSearched: spaces,
		Degraded:       true,
		Message:        "primary search unavailable: " + primaryErr,
		CorrelationID:  correlationID,
	}, nil
}

func toOpenMemoryHits(results []openmemory.SearchHit) []QueryHit {
	hits := make([]QueryHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, QueryHit{
			ID:         r.ID,
			Content:    r.Content,
			Title:      r.Title,
			Kind:       r.Kind,
			Confidence: r.Confidence,
			CreatedAt:  r.CreatedAt,
			Source:     "openmemory",
		})
	}
	return hits
}

func toCandidateHits(candidates []logbook.KnowledgeCandidate) []QueryHit {
	hits := make([]QueryHit, 0, len(candidates))
	for _, c := range candidates {
		hits = append(hits, QueryHit{
			ID:           formatCandidateID(c.CandidateID),
			Content:      c.ContentMD,
			Title:        c.Title,
			Kind:         c.Kind,
			Confidence:   c.Confidence,
			EvidenceRefs: c.EvidenceRefsJSON,
			CreatedAt:    c.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Source:       "logbook_fallback",
		})
	}
	return hits
}
