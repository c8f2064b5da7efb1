package order

import (
	"crypto/rand"
	"time"
)

// Crockford-style alphabet without easily confused characters, suitable for
// reading an order number over the phone.
const numberAlphabet = "23456789ABCDEFGHJKMNPQRSTVWXYZ"

const numberSuffixLen = 6

// NewNumber generates a human-readable order number: a date prefix plus a
// random suffix, e.g. ORD-20260831-7KQ4MX. Uniqueness is enforced by the
// persistence layer; a collision fails the insert and the transaction
// retry generates a fresh number.
func NewNumber(t time.Time) string {
	buf := make([]byte, numberSuffixLen)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = numberAlphabet[int(buf[i])%len(numberAlphabet)]
	}
	return "ORD-" + t.UTC().Format("20060102") + "-" + string(buf)
}
