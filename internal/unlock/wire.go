package unlock

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"
)

// originError is the {"code":...,"message":...} object of origin responses.
type originError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *originError) Error() string {
	return fmt.Sprintf("origin error %d: %s", e.Code, e.Message)
}

// decodeOriginError returns nil for a missing, empty or non-object error field.
func decodeOriginError(raw json.RawMessage) *originError {
	if len(raw) == 0 {
		return nil
	}
	var oe originError
	if err := json.Unmarshal(raw, &oe); err != nil {
		return nil
	}
	if oe.Code == 0 && oe.Message == "" {
		return nil
	}
	return &oe
}

// flexBool accepts true/false, 0/1 and their quoted forms.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := string(data)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	switch s {
	case "", "null", "0", "false":
		*b = false
	case "1", "true":
		*b = true
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid boolean %q", string(data))
		}
		*b = n != 0
	}
	return nil
}

const hashAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// randomHash is the cache-busting hash the token endpoints expect.
func randomHash(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = hashAlphabet[rand.IntN(len(hashAlphabet))]
	}
	return string(b)
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
