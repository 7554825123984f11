package dex

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/uhyunpark/dexscenario/pkg/harness"
)

// ErrCode is the numeric tag orderbookdex puts in front of its assertion
// messages.
type ErrCode int

const (
	ErrNone              ErrCode = 0
	ErrRecordNotFound    ErrCode = 1
	ErrRecordExisting    ErrCode = 2
	ErrSymbolMismatch    ErrCode = 4
	ErrParamError        ErrCode = 5
	ErrMemoFormatError   ErrCode = 6
	ErrPaused            ErrCode = 7
	ErrNoAuth            ErrCode = 8
	ErrNotPositive       ErrCode = 9
	ErrNotStarted        ErrCode = 10
	ErrOversized         ErrCode = 11
	ErrTimeExpired       ErrCode = 12
	ErrNotifyUnrelated   ErrCode = 13
	ErrActionRedundant   ErrCode = 14
	ErrAccountInvalid    ErrCode = 15
	ErrFeeInsufficient   ErrCode = 16
	ErrFirstCreator      ErrCode = 17
	ErrStatusError       ErrCode = 18
	ErrScoreNotEnough    ErrCode = 19
	ErrNeedRequiredCheck ErrCode = 20
)

var errCodeNames = map[ErrCode]string{
	ErrNone:              "NONE",
	ErrRecordNotFound:    "RECORD_NOT_FOUND",
	ErrRecordExisting:    "RECORD_EXISTING",
	ErrSymbolMismatch:    "SYMBOL_MISMATCH",
	ErrParamError:        "PARAM_ERROR",
	ErrMemoFormatError:   "MEMO_FORMAT_ERROR",
	ErrPaused:            "PAUSED",
	ErrNoAuth:            "NO_AUTH",
	ErrNotPositive:       "NOT_POSITIVE",
	ErrNotStarted:        "NOT_STARTED",
	ErrOversized:         "OVERSIZED",
	ErrTimeExpired:       "TIME_EXPIRED",
	ErrNotifyUnrelated:   "NOTIFY_UNRELATED",
	ErrActionRedundant:   "ACTION_REDUNDANT",
	ErrAccountInvalid:    "ACCOUNT_INVALID",
	ErrFeeInsufficient:   "FEE_INSUFFICIENT",
	ErrFirstCreator:      "FIRST_CREATOR",
	ErrStatusError:       "STATUS_ERROR",
	ErrScoreNotEnough:    "SCORE_NOT_ENOUGH",
	ErrNeedRequiredCheck: "NEED_REQUIRED_CHECK",
}

func (c ErrCode) String() string {
	if n, ok := errCodeNames[c]; ok {
		return n
	}
	return "ERR_" + strconv.Itoa(int(c))
}

// ParseErrCode accepts a code name ("STATUS_ERROR", case-insensitive) or its
// number.
func ParseErrCode(s string) (ErrCode, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := errCodeNames[ErrCode(n)]; ok {
			return ErrCode(n), nil
		}
		return 0, fmt.Errorf("unknown error code %d", n)
	}
	upper := strings.ToUpper(s)
	for c, name := range errCodeNames {
		if name == upper {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown error code %q", s)
}

// CodeOf returns the contract error code carried by err, if any.
func CodeOf(err error) (ErrCode, bool) {
	var ce *harness.ContractError
	if errors.As(err, &ce) {
		return ErrCode(ce.Code), true
	}
	return 0, false
}
