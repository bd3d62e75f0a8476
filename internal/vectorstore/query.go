package vectorstore

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// Match is one search hit with its display payload.
type Match struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// QueryParams are passed through to the index unmodified; there is no
// planning beyond building the filter conditions.
type QueryParams struct {
	Vector   []float32
	Limit    uint64
	Keywords map[string]string
}

// Search runs a nearest-neighbour query with optional keyword filters.
func (w *Writer) Search(ctx context.Context, params QueryParams) ([]Match, error) {
	err := w.Ensure(ctx)
	if err != nil {
		return nil, err
	}

	req := &qdrant.QueryPoints{
		CollectionName: w.Collection(),
		Query:          qdrant.NewQuery(params.Vector...),
		Limit:          qdrant.PtrOf(params.Limit),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	if len(params.Keywords) > 0 {
		conditions := make([]*qdrant.Condition, 0, len(params.Keywords))
		for field, value := range params.Keywords {
			conditions = append(conditions, qdrant.NewMatch(field, value))
		}

		req.Filter = &qdrant.Filter{Must: conditions}
	}

	points, err := w.client.Query(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", w.Collection(), err)
	}

	matches := make([]Match, 0, len(points))

	for _, p := range points {
		matches = append(matches, Match{
			ID:      pointIDString(p.GetId()),
			Score:   p.GetScore(),
			Payload: stringPayload(p.GetPayload()),
		})
	}

	return matches, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}

	return id.GetUuid()
}

// stringPayload keeps the string-valued payload fields for display.
func stringPayload(payload map[string]*qdrant.Value) map[string]string {
	out := make(map[string]string, len(payload))

	for key, value := range payload {
		if s := value.GetStringValue(); s != "" {
			out[key] = s
		}
	}

	return out
}
