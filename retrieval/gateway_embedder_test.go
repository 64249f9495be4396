package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/gateway"
)

func embedGateway(fn func(texts []string) (any, error)) *gateway.Gateway {
	gw := gateway.New()
	gw.RegisterService(gateway.NewFuncService("llm").
		Handle("embed", gateway.OperationSpec{
			Description: "Embed texts for tests.",
		}, func(_ context.Context, payload map[string]any) (any, error) {
			texts, _ := payload["texts"].([]string)
			return fn(texts)
		}))
	return gw
}

func TestGatewayEmbedder_DecodesVectors(t *testing.T) {
	gw := embedGateway(func(texts []string) (any, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = []float32{float32(i), 1, 0, 0}
		}
		return map[string]any{"embeddings": out}, nil
	})

	e := NewGatewayEmbedder(gw, "llm", "embed", 4)
	assert.Equal(t, 4, e.Dimensions())

	vecs, err := e.Embed(context.Background(), []string{"leave policy", "expense policy"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 1, 0, 0}, vecs[1])
}

func TestGatewayEmbedder_DecodesJSONShapedVectors(t *testing.T) {
	// Remote services come back through JSON decoding as []any of float64.
	gw := embedGateway(func([]string) (any, error) {
		return map[string]any{"embeddings": []any{[]any{0.5, 0.25}}}, nil
	})

	vecs, err := NewGatewayEmbedder(gw, "llm", "embed", 2).Embed(context.Background(), []string{"leave"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.5, 0.25}}, vecs)
}

func TestGatewayEmbedder_RejectsMalformedResponses(t *testing.T) {
	tests := []struct {
		name   string
		result any
	}{
		{name: "not an object", result: "vectors"},
		{name: "missing embeddings field", result: map[string]any{}},
		{name: "vector count mismatch", result: map[string]any{"embeddings": []any{[]any{1.0, 2.0}, []any{3.0, 4.0}}}},
		{name: "dimension mismatch", result: map[string]any{"embeddings": []any{[]any{1.0}}}},
		{name: "non-numeric element", result: map[string]any{"embeddings": []any{[]any{1.0, "x"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := embedGateway(func([]string) (any, error) { return tt.result, nil })
			_, err := NewGatewayEmbedder(gw, "llm", "embed", 2).Embed(context.Background(), []string{"leave"})
			assert.Error(t, err)
		})
	}
}

func TestGatewayEmbedder_PropagatesServiceFailure(t *testing.T) {
	gw := embedGateway(func([]string) (any, error) {
		return nil, gateway.Permanent(errors.New("model does not support embeddings"))
	})

	_, err := NewGatewayEmbedder(gw, "llm", "embed", 0).Embed(context.Background(), []string{"leave"})
	require.Error(t, err)
}
