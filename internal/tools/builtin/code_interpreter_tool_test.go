package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microsoft/stepfly/internal/memstore"
	"github.com/microsoft/stepfly/internal/model"
	"github.com/microsoft/stepfly/internal/sandbox"
)

type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Complete(_ context.Context, _ model.Request) (model.Response, error) {
	if s.calls >= len(s.responses) {
		s.calls++
		return model.Response{Content: "not json"}, nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return model.Response{Content: resp}, nil
}

func TestCodeInterpreterRequiresTask(t *testing.T) {
	tool := CodeInterpreterTool{Store: openTestStore(t), Sandbox: sandbox.New(t.TempDir(), 0), LLM: &scriptedLLM{}}
	out, err := tool.Execute(context.Background(), map[string]any{"input_type": "direct_data", "input_data": map[string]any{}})
	require.NoError(t, err)
	require.Contains(t, out, "'task' is required")
}

func TestCodeInterpreterRejectsUnknownInputType(t *testing.T) {
	tool := CodeInterpreterTool{Store: openTestStore(t), Sandbox: sandbox.New(t.TempDir(), 0), LLM: &scriptedLLM{}}
	out, err := tool.Execute(context.Background(), map[string]any{"task": "summarize", "input_type": "bogus"})
	require.NoError(t, err)
	require.Contains(t, out, "input_type")
}

func TestCodeInterpreterMemoryDataMissingIDErrors(t *testing.T) {
	tool := CodeInterpreterTool{Store: openTestStore(t), Sandbox: sandbox.New(t.TempDir(), 0), LLM: &scriptedLLM{}}
	out, err := tool.Execute(context.Background(), map[string]any{
		"task": "summarize", "input_type": "memory_data",
		"input_data": map[string]any{"no-such-id": "description"},
	})
	require.NoError(t, err)
	require.Contains(t, out, "Error resolving input_data")
}

func TestCodeInterpreterExhaustsRetriesOnMalformedGeneration(t *testing.T) {
	tool := CodeInterpreterTool{
		Store:      openTestStore(t),
		Sandbox:    sandbox.New(t.TempDir(), 0),
		LLM:        &scriptedLLM{}, // every call returns unparseable content
		MaxRetries: 2,
	}
	out, err := tool.Execute(context.Background(), map[string]any{
		"task": "summarize", "input_type": "direct_data",
		"input_data": map[string]any{"x": 1},
	})
	require.NoError(t, err)
	require.Contains(t, out, "Failed to execute")
	require.Contains(t, out, "after 2 attempts")
}

func TestCodeInterpreterDirectDataResolvesLiteralValues(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	tool := CodeInterpreterTool{Store: store, Sandbox: sandbox.New(t.TempDir(), 0), LLM: &scriptedLLM{}}

	info, values, err := tool.resolveInput(ctx, "direct_data", map[string]any{"x": float64(42)})
	require.NoError(t, err)
	require.Equal(t, float64(42), values["x"])
	require.NotNil(t, info["x"])
}

func TestCodeInterpreterMemoryDataResolvesFromStore(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	id, err := store.AddData(ctx, memstore.Record{Data: "payload", DataType: "note"})
	require.NoError(t, err)

	tool := CodeInterpreterTool{Store: store, Sandbox: sandbox.New(t.TempDir(), 0), LLM: &scriptedLLM{}}
	info, values, err := tool.resolveInput(ctx, "memory_data", map[string]any{id: "a note"})
	require.NoError(t, err)

	varName := "data_" + replaceDashes(id)
	require.Equal(t, "payload", values[varName])
	require.NotNil(t, info[varName])
}

func replaceDashes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '-' {
			out = append(out, '_')
		} else {
			out = append(out, r)
		}
	}
	return string(out)
}

func TestCodeInterpreterSucceedsWithBuiltinOperation(t *testing.T) {
	tool := CodeInterpreterTool{
		Store:   openTestStore(t),
		Sandbox: sandbox.New(t.TempDir(), 0),
		LLM: &scriptedLLM{responses: []string{
			`{"operation": "statistics", "input": {"values": [10, 20, 30, 40]}}`,
		}},
	}
	out, err := tool.Execute(context.Background(), map[string]any{
		"task": "summarize the latency samples", "input_type": "direct_data",
		"input_data": map[string]any{"latency_ms": []any{10, 20, 30, 40}},
	})
	require.NoError(t, err)
	require.Contains(t, out, "Code executed successfully")
	require.Contains(t, out, `"mean":25`)
}

func TestCodeInterpreterRecoversAfterBadOperationInput(t *testing.T) {
	tool := CodeInterpreterTool{
		Store:   openTestStore(t),
		Sandbox: sandbox.New(t.TempDir(), 0),
		LLM: &scriptedLLM{responses: []string{
			`{"operation": "statistics", "input": {"values": []}}`,
			`{"operation": "statistics", "input": {"values": [1, 3]}}`,
		}},
		MaxRetries: 3,
	}
	out, err := tool.Execute(context.Background(), map[string]any{
		"task": "summarize", "input_type": "direct_data", "input_data": map[string]any{},
	})
	require.NoError(t, err)
	require.Contains(t, out, "Code executed successfully")
	require.Contains(t, out, `"mean":2`)
}
