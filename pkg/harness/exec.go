package harness

import (
	"bytes"
	"context"
	"errors"
	osexec "os/exec"
)

// execute runs a command and returns its stdout. On failure the combined
// stdout and stderr is kept in a *CommandError.
func execute(ctx context.Context, args ...string) ([]byte, error) {
	if len(args) == 0 {
		return nil, errors.New("empty command")
	}
	var stdout, stderr bytes.Buffer
	cmd := osexec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &CommandError{
			Args:   args,
			Output: stdout.String() + stderr.String(),
			Err:    err,
		}
	}
	return stdout.Bytes(), nil
}
