package credential

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"
)

const serialRandomLen = 10

// Crockford-style alphabet without padding; avoids characters that are easy
// to misread when a serial is typed from a printed certificate.
var serialEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// newSerialNumber allocates a human-displayable serial like SP-2026-4R7K9M2XWQ.
// Uniqueness is ultimately enforced by the store's unique constraint; the
// 50 bits of randomness make a retry-worthy collision vanishingly rare.
func newSerialNumber(now time.Time) (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("serial entropy: %w", err)
	}
	enc := serialEncoding.EncodeToString(buf)
	return fmt.Sprintf("SP-%d-%s", now.UTC().Year(), enc[:serialRandomLen]), nil
}

// IsSerialNumber reports whether an identifier has the serial shape. The
// gateway uses it to decide lookup order for ambiguous identifiers.
func IsSerialNumber(identifier string) bool {
	return strings.HasPrefix(identifier, "SP-")
}
