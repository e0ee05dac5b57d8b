package implicit

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/hashicorp/go-uuid"
)

// StateSize is the number of random bytes in a login attempt's state. The
// hex encoded state is twice as long.
const StateSize = 20

// NewState generates the anti-replay state for one login attempt: StateSize
// bytes read from r, encoded as lowercase hex. A nil r uses crypto/rand.
func NewState(r io.Reader) (string, error) {
	const op = "implicit.NewState"
	if r == nil {
		r = rand.Reader
	}
	b, err := uuid.GenerateRandomBytesWithReader(StateSize, r)
	if err != nil {
		return "", fmt.Errorf("%s: unable to read random bytes: %s: %w", op, err, ErrStateGeneratorFailed)
	}
	return hex.EncodeToString(b), nil
}
