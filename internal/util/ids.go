package util

import (
	"crypto/rand"
	"math/big"
)

const orderIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// IDGenerator produces order ids
type IDGenerator func() string

// NewOrderID returns "ORD-" followed by 6 uppercase alphanumerics
func NewOrderID() string {
	b := make([]byte, 6)
	max := big.NewInt(int64(len(orderIDAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b[i] = orderIDAlphabet[i]
			continue
		}
		b[i] = orderIDAlphabet[n.Int64()]
	}
	return "ORD-" + string(b)
}

// SequentialOrderIDs returns a deterministic generator: ORD-000001, ORD-000002, ...
func SequentialOrderIDs() IDGenerator {
	var n int
	return func() string {
		n++
		b := []byte("000000")
		for i, v := len(b)-1, n; i >= 0 && v > 0; i, v = i-1, v/10 {
			b[i] = byte('0' + v%10)
		}
		return "ORD-" + string(b)
	}
}
