package chain

import "fmt"

// Name is an account, action, table or permission name. Names are up to 12
// characters from ".12345abcdefghijklmnopqrstuvwxyz"; a 13th character is
// allowed but limited to ".12345abcdefghij".
type Name string

func charToSymbol(c byte) (uint64, bool) {
	switch {
	case c >= 'a' && c <= 'z':
		return uint64(c-'a') + 6, true
	case c >= '1' && c <= '5':
		return uint64(c-'1') + 1, true
	case c == '.':
		return 0, true
	}
	return 0, false
}

// Validate reports whether n is a well-formed, non-empty account name.
func (n Name) Validate() error {
	s := string(n)
	if len(s) == 0 {
		return fmt.Errorf("empty name")
	}
	if len(s) > 13 {
		return fmt.Errorf("name %q longer than 13 characters", s)
	}
	for i := 0; i < len(s); i++ {
		sym, ok := charToSymbol(s[i])
		if !ok {
			return fmt.Errorf("name %q has invalid character %q", s, s[i])
		}
		if i == 12 && sym > 0x0f {
			return fmt.Errorf("name %q: 13th character must be in [.1-5a-j]", s)
		}
	}
	if s[len(s)-1] == '.' {
		return fmt.Errorf("name %q must not end with '.'", s)
	}
	return nil
}

// Uint64 returns the 64-bit encoding used for table keys and scopes. The
// result is only meaningful for names that pass Validate.
func (n Name) Uint64() uint64 {
	s := string(n)
	var value uint64
	for i := 0; i < len(s) && i < 13; i++ {
		sym, _ := charToSymbol(s[i])
		if i < 12 {
			value |= (sym & 0x1f) << (64 - 5*(i+1))
		} else {
			value |= sym & 0x0f
		}
	}
	return value
}

func (n Name) String() string { return string(n) }
