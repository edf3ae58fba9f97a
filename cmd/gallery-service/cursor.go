package main

import (
	"fmt"
	"strconv"
	"strings"
)

// randomCursor is the parsed form of a random-mode pagination cursor. The
// wire shape is "{sessionKey}_{drawnCount}". The numeric suffix is
// informational only; authoritative progress lives in the session's drawn
// set. Deterministic-mode cursors are opaque library tokens and never pass
// through here.
type randomCursor struct {
	sessionKey string
	drawn      int
}

func (c randomCursor) String() string {
	return fmt.Sprintf("%s_%d", c.sessionKey, c.drawn)
}

func parseRandomCursor(raw string) (randomCursor, error) {
	i := strings.LastIndexByte(raw, '_')
	if i <= 0 || i == len(raw)-1 {
		return randomCursor{}, fmt.Errorf("malformed random cursor %q", raw)
	}
	drawn, err := strconv.Atoi(raw[i+1:])
	if err != nil || drawn < 0 {
		return randomCursor{}, fmt.Errorf("malformed random cursor %q", raw)
	}
	return randomCursor{sessionKey: raw[:i], drawn: drawn}, nil
}
