// Package userinteraction defines the side-channel transport the
// user_interaction tool uses to reach a human outside the worker's own
// process, in one of three modes: info, question, options.
package userinteraction

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Transport delivers a message to a human and, for interactive modes,
// blocks for their reply.
type Transport interface {
	// Info displays a message with no reply expected.
	Info(ctx context.Context, message string) error
	// Ask displays a question and returns the human's free-text reply.
	Ask(ctx context.Context, message string) (string, error)
	// Choose displays message and options and returns the chosen option's
	// index (0-based).
	Choose(ctx context.Context, message string, options []string) (int, error)
}

// StdinTransport is the default transport for CLI sessions: it writes to an
// output writer and blocks reading a line from an input reader.
type StdinTransport struct {
	In  io.Reader
	Out io.Writer
}

func (t StdinTransport) Info(_ context.Context, message string) error {
	_, err := fmt.Fprintf(t.Out, "\nInfo: %s\n", message)
	return err
}

func (t StdinTransport) Ask(_ context.Context, message string) (string, error) {
	if _, err := fmt.Fprintf(t.Out, "\nQuestion: %s\n> ", message); err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(t.In)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func (t StdinTransport) Choose(_ context.Context, message string, options []string) (int, error) {
	if _, err := fmt.Fprintf(t.Out, "\nOptions: %s\n", message); err != nil {
		return 0, err
	}
	for i, opt := range options {
		if _, err := fmt.Fprintf(t.Out, "%d. %s\n", i+1, opt); err != nil {
			return 0, err
		}
	}
	fmt.Fprint(t.Out, "Enter your choice (number): ")
	scanner := bufio.NewScanner(t.In)
	if !scanner.Scan() {
		return 0, scanner.Err()
	}
	choice, err := strconv.Atoi(strings.TrimSpace(scanner.Text()))
	if err != nil {
		return 0, fmt.Errorf("invalid input: not a number")
	}
	idx := choice - 1
	if idx < 0 || idx >= len(options) {
		return 0, fmt.Errorf("invalid choice: must be between 1 and %d", len(options))
	}
	return idx, nil
}
