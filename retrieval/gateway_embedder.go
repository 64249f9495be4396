package retrieval

import (
	"context"
	"fmt"

	"github.com/talentmesh/talentmesh/gateway"
)

// GatewayEmbedder obtains embeddings from the language-generation service
// through the external capability gateway, inheriting its retry and backoff
// behavior. The operation is expected to accept {"texts": [...]} and return
// {"embeddings": [[...], ...]}.
type GatewayEmbedder struct {
	gw        *gateway.Gateway
	service   string
	operation string
	dims      int
}

// NewGatewayEmbedder creates an embedder backed by the named gateway service
// and operation.
func NewGatewayEmbedder(gw *gateway.Gateway, service, operation string, dims int) *GatewayEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &GatewayEmbedder{gw: gw, service: service, operation: operation, dims: dims}
}

// Dimensions returns the configured vector width.
func (e *GatewayEmbedder) Dimensions() int { return e.dims }

// Embed invokes the embedding operation and decodes the vectors.
func (e *GatewayEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]any{"texts": texts}
	result, err := e.gw.Invoke(ctx, e.service, e.operation, payload)
	if err != nil {
		return nil, err
	}
	return decodeEmbeddings(result, len(texts), e.dims)
}

func decodeEmbeddings(result any, want, dims int) ([][]float32, error) {
	obj, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("embedding response is %T, not an object", result)
	}
	raw, ok := obj["embeddings"]
	if !ok {
		return nil, fmt.Errorf("embedding response has no embeddings field")
	}

	var rows []any
	switch v := raw.(type) {
	case []any:
		rows = v
	case [][]float32:
		if len(v) != want {
			return nil, fmt.Errorf("embedding response has %d vectors, want %d", len(v), want)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("embeddings field is %T, not a list", raw)
	}

	if len(rows) != want {
		return nil, fmt.Errorf("embedding response has %d vectors, want %d", len(rows), want)
	}
	out := make([][]float32, len(rows))
	for i, row := range rows {
		items, ok := row.([]any)
		if !ok {
			return nil, fmt.Errorf("embedding vector %d is %T, not a list", i, row)
		}
		if len(items) != dims {
			return nil, fmt.Errorf("embedding vector %d has %d dimensions, want %d", i, len(items), dims)
		}
		vec := make([]float32, len(items))
		for j, item := range items {
			f, ok := item.(float64)
			if !ok {
				return nil, fmt.Errorf("embedding vector %d element %d is %T, not a number", i, j, item)
			}
			vec[j] = float32(f)
		}
		out[i] = vec
	}
	return out, nil
}
