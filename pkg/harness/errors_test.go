package harness

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestParseContractError(t *testing.T) {
	tests := []struct {
		name   string
		output string
		code   int
		msg    string
	}{
		{
			name:   "cli assertion",
			output: "Error 3050003: eosio_assert_message assertion failure\nError Details:\nassertion failure with message: $$$18$$$ require quantity is 4.012000 MUSDT\npending console output:",
			code:   18,
			msg:    "require quantity is 4.012000 MUSDT",
		},
		{
			name:   "no space after tag",
			output: `"message":"assertion failure with message: $$$5$$$The user exists: user=buyer"`,
			code:   5,
			msg:    `The user exists: user=buyer"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := ParseContractError(tt.output)
			if ce == nil {
				t.Fatal("expected contract error")
			}
			if ce.Code != tt.code || ce.Message != tt.msg {
				t.Errorf("got %d %q, want %d %q", ce.Code, ce.Message, tt.code, tt.msg)
			}
		})
	}

	if ParseContractError("Error 3080004: transaction exceeded the current CPU usage limit") != nil {
		t.Error("untagged failure must not parse")
	}
}

func TestCommandErrorUnwrapsContractError(t *testing.T) {
	base := errors.New("exit status 1")
	err := error(&CommandError{Args: []string{"amcli"}, Output: "$$$1$$$ sympair not found: 9", Err: base})

	var ce *ContractError
	if !errors.As(err, &ce) || ce.Code != 1 {
		t.Fatalf("expected contract error code 1, got %v", err)
	}

	plain := error(&CommandError{Args: []string{"amcli"}, Output: "connection refused", Err: base})
	if !errors.Is(plain, base) {
		t.Error("plain command error should unwrap to the exec error")
	}
}

func TestCommandErrorKeepsExecError(t *testing.T) {
	timeout := fmt.Errorf("signal: killed: %w", context.DeadlineExceeded)
	err := fmt.Errorf("push action: %w", &CommandError{
		Args:   []string{"amcli", "push", "action"},
		Output: "assertion failure with message: $$$3$$$ order not found\nerror: deadline exceeded",
		Err:    timeout,
	})

	var ce *ContractError
	if !errors.As(err, &ce) || ce.Code != 3 {
		t.Fatalf("expected contract error code 3, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("command error with contract output should still match the exec error")
	}
}
