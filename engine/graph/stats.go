package graph

import "context"

// EntityStats holds per-entity document counts.
type EntityStats struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Documents int64  `json:"documents"`
}

// NodeCounts returns node counts grouped by label.
func (g *GraphStore) NodeCounts(ctx context.Context) (map[string]int64, error) {
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (n) RETURN labels(n)[0] AS type, count(*) AS count`
	result, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64)
	for result.Next(ctx) {
		rec := result.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[t] = c
			}
		}
	}
	return counts, result.Err()
}

// TopEntities returns the entities mentioned by the most documents.
func (g *GraphStore) TopEntities(ctx context.Context, limit int) ([]EntityStats, error) {
	if limit <= 0 {
		limit = 10
	}
	sess := g.opener.OpenSession(ctx)
	defer sess.Close(ctx)

	cypher := `MATCH (e:Entity)<-[:MENTIONS]-(d:Document)
		RETURN e.name AS name, e.kind AS kind, count(DISTINCT d) AS documents
		ORDER BY documents DESC, name ASC LIMIT $limit`
	result, err := sess.Run(ctx, cypher, map[string]any{"limit": int64(limit)})
	if err != nil {
		return nil, err
	}
	var stats []EntityStats
	for result.Next(ctx) {
		rec := result.Record()
		s := EntityStats{
			Name: recordString(rec, "name"),
			Kind: recordString(rec, "kind"),
		}
		if v, ok := rec.Get("documents"); ok {
			if n, ok := v.(int64); ok {
				s.Documents = n
			}
		}
		stats = append(stats, s)
	}
	return stats, result.Err()
}
