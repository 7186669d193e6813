package toolerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecutionObservationNamesTheAction(t *testing.T) {
	cause := errors.New("connection refused")
	err := Execution("sql_query_tool", cause)

	require.Equal(t, "Error executing sql_query_tool: connection refused", err.Error())
	require.Equal(t, "sql_query_tool", err.Action)
}

func TestExecutionPreservesCauseForErrorsIs(t *testing.T) {
	cause := errors.New("boom")
	err := Execution("code_interpreter", cause)

	require.ErrorIs(t, err, cause)

	var te *ToolError
	require.True(t, errors.As(err, &te))
	require.Same(t, err, te)
}

func TestNotFoundListsAvailableTools(t *testing.T) {
	err := NotFound("bogus_tool", []string{"memory_tool", "finish_step"})
	require.Equal(t, "Error: Tool 'bogus_tool' not found. Available tools: memory_tool, finish_step", err.Error())
	require.Nil(t, err.Unwrap(), "a lookup miss has no underlying cause")
}

func TestNotFoundWithNoAvailableTools(t *testing.T) {
	err := NotFound("bogus_tool", nil)
	require.Equal(t, "Error: Tool 'bogus_tool' not found. Available tools: ", err.Error())
}

func TestNilToolErrorIsEmpty(t *testing.T) {
	var err *ToolError
	require.Equal(t, "", err.Error())
	require.Nil(t, err.Unwrap())
}
