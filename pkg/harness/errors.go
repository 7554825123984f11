package harness

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CommandError is a failed CLI invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("failed to run %q: %v\n%s", e.Args, e.Err, strings.TrimSpace(e.Output))
}

// Unwrap exposes the contract assertion found in the output, if any, next
// to the exec error.
func (e *CommandError) Unwrap() []error {
	var errs []error
	if c := ParseContractError(e.Output); c != nil {
		errs = append(errs, c)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// ContractError is an assertion raised by a contract that tags its messages
// as "$$$<code>$$$ <message>".
type ContractError struct {
	Code    int
	Message string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("contract error %d: %s", e.Code, e.Message)
}

var contractErrRe = regexp.MustCompile(`\$\$\$(\d+)\$\$\$ ?([^\r\n]*)`)

// ParseContractError extracts the first tagged assertion from CLI or RPC
// output, or returns nil.
func ParseContractError(output string) *ContractError {
	m := contractErrRe.FindStringSubmatch(output)
	if m == nil {
		return nil
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &ContractError{Code: code, Message: strings.TrimSpace(m[2])}
}
