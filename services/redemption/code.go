package redemption

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const codePrefix = "LOYAL"

// Alphabet without ambiguous characters (0/O, 1/I).
const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 8

// NewVoucherCode generates a random voucher code like LOYAL-7KQ2MHXN. Global
// uniqueness is enforced by the unique index on the voucher_code column, not
// by this generator.
func NewVoucherCode() (string, error) {
	b := make([]byte, codeLength)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		if err != nil {
			return "", err
		}
		b[i] = codeChars[num.Int64()]
	}
	return fmt.Sprintf("%s-%s", codePrefix, string(b)), nil
}
