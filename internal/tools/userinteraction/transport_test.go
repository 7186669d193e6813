package userinteraction

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStdinTransportInfoWritesMessage(t *testing.T) {
	var out bytes.Buffer
	tr := StdinTransport{Out: &out}

	require.NoError(t, tr.Info(context.Background(), "disk usage at 90%"))
	require.Contains(t, out.String(), "disk usage at 90%")
}

func TestStdinTransportAskReturnsTrimmedLine(t *testing.T) {
	var out bytes.Buffer
	tr := StdinTransport{In: strings.NewReader("  restart the service  \n"), Out: &out}

	reply, err := tr.Ask(context.Background(), "what should we do?")
	require.NoError(t, err)
	require.Equal(t, "restart the service", reply)
	require.Contains(t, out.String(), "what should we do?")
}

func TestStdinTransportChooseReturnsZeroBasedIndex(t *testing.T) {
	var out bytes.Buffer
	tr := StdinTransport{In: strings.NewReader("2\n"), Out: &out}

	idx, err := tr.Choose(context.Background(), "pick a remediation", []string{"restart", "rollback", "scale out"})
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Contains(t, out.String(), "2. rollback")
}

func TestStdinTransportChooseRejectsNonNumericInput(t *testing.T) {
	tr := StdinTransport{In: strings.NewReader("rollback\n"), Out: &bytes.Buffer{}}

	_, err := tr.Choose(context.Background(), "pick", []string{"a", "b"})
	require.ErrorContains(t, err, "not a number")
}

func TestStdinTransportChooseRejectsOutOfRangeInput(t *testing.T) {
	tr := StdinTransport{In: strings.NewReader("9\n"), Out: &bytes.Buffer{}}

	_, err := tr.Choose(context.Background(), "pick", []string{"a", "b"})
	require.ErrorContains(t, err, "invalid choice")
}

func TestStdinTransportAskOnEmptyInputReturnsEmptyString(t *testing.T) {
	tr := StdinTransport{In: strings.NewReader(""), Out: &bytes.Buffer{}}

	reply, err := tr.Ask(context.Background(), "anyone there?")
	require.NoError(t, err)
	require.Equal(t, "", reply)
}
