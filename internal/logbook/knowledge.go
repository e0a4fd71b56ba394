package logbook

import (
	"context"
	"encoding/json"
)

// QueryKnowledgeCandidates is the degraded-mode fallback memory_query uses
// when OpenMemory is unavailable: a keyword scan over audit-backed
// knowledge candidates instead of real full-text/vector search.
func (p *PG) QueryKnowledgeCandidates(ctx context.Context, keyword string, topK int, spaceFilter string) ([]KnowledgeCandidate, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT candidate_id, title, content_md, kind, confidence, evidence_refs_json, created_at
		FROM knowledge_candidate
		WHERE ($2 = '' OR content_md ILIKE '%' || $1 || '%' OR title ILIKE '%' || $1 || '%')
		ORDER BY confidence DESC, created_at DESC
		LIMIT $3
	`, keyword, spaceFilter, topK)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []KnowledgeCandidate
	for rows.Next() {
		var c KnowledgeCandidate
		var evidenceRaw []byte
		if err := rows.Scan(&c.CandidateID, &c.Title, &c.ContentMD, &c.Kind, &c.Confidence, &evidenceRaw, &c.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		if len(evidenceRaw) > 0 {
			_ = json.Unmarshal(evidenceRaw, &c.EvidenceRefsJSON)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}
	return out, nil
}
