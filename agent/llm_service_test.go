package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentmesh/talentmesh/gateway"
	"github.com/talentmesh/talentmesh/model"
)

func TestLLMService_Classify(t *testing.T) {
	m := model.NewMockModel("classifier")
	m.AddResponse(
		"Intent tags: leave, onboarding\nMessage: I want to take a vacation",
		`{"tag": "leave", "confidence": 0.92, "parameters": {"kind": "annual"}}`,
	)
	gw := gateway.New()
	gw.RegisterService(NewLLMService(m, nil))

	result, err := gw.Invoke(context.Background(), LLMServiceName, "classify", map[string]any{
		"message": "I want to take a vacation",
		"tags":    []any{"leave", "onboarding"},
	})
	require.NoError(t, err)

	obj, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "leave", obj["tag"])
	assert.Equal(t, 0.92, obj["confidence"])
	params, ok := obj["parameters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "annual", params["kind"])
}

func TestLLMService_ClassifyToleratesWrappedJSON(t *testing.T) {
	m := model.NewMockModel("classifier")
	m.AddResponse(
		"Intent tags: leave\nMessage: holidays please",
		"Sure! Here is the classification:\n{\"tag\": \"leave\", \"confidence\": 0.8}\nLet me know.",
	)
	gw := gateway.New()
	gw.RegisterService(NewLLMService(m, nil))

	result, err := gw.Invoke(context.Background(), LLMServiceName, "classify", map[string]any{
		"message": "holidays please",
		"tags":    []any{"leave"},
	})
	require.NoError(t, err)
	obj := result.(map[string]any)
	assert.Equal(t, "leave", obj["tag"])
}

func TestLLMService_Generate(t *testing.T) {
	m := model.NewMockModel("writer")
	m.AddResponse("summarize the policy", "Short summary.")
	gw := gateway.New()
	gw.RegisterService(NewLLMService(m, nil))

	result, err := gw.Invoke(context.Background(), LLMServiceName, "generate", map[string]any{
		"message": "summarize the policy",
		"system":  "Be brief.",
	})
	require.NoError(t, err)
	obj := result.(map[string]any)
	assert.Equal(t, "Short summary.", obj["text"])
}

func TestLLMService_EmbedWithoutEmbedder(t *testing.T) {
	gw := gateway.New()
	gw.RegisterService(NewLLMService(model.NewMockModel("plain"), nil))

	_, err := gw.Invoke(context.Background(), LLMServiceName, "embed", map[string]any{
		"texts": []any{"hello"},
	})
	require.Error(t, err)
	assert.False(t, gateway.IsTransient(err), "unsupported embeddings must not be retried")
}

type staticEmbedder struct{}

func (staticEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func TestLLMService_Embed(t *testing.T) {
	gw := gateway.New()
	gw.RegisterService(NewLLMService(model.NewMockModel("plain"), staticEmbedder{}))

	result, err := gw.Invoke(context.Background(), LLMServiceName, "embed", map[string]any{
		"texts": []any{"a", "b"},
	})
	require.NoError(t, err)
	obj := result.(map[string]any)
	vectors, ok := obj["embeddings"].([][]float32)
	require.True(t, ok)
	require.Len(t, vectors, 2)
}
