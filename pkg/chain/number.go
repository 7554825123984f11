package chain

import (
	"bytes"
	"fmt"
	"strconv"
)

// Uint64 decodes 64-bit integers from chain JSON, which quotes values that
// do not fit 32 bits.
type Uint64 uint64

func (u *Uint64) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	v, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 %s: %w", b, err)
	}
	*u = Uint64(v)
	return nil
}

func (u Uint64) MarshalJSON() ([]byte, error) {
	return strconv.AppendUint(nil, uint64(u), 10), nil
}

func (u Uint64) String() string { return strconv.FormatUint(uint64(u), 10) }
