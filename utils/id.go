package utils

import (
	"crypto/rand"
	"math/big"
)

// IDAlphabet omits characters that are easy to confuse in print (0/O, 1/I/l, o).
const IDAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"

// DefaultIDLength is the length used for link ids.
const DefaultIDLength = 10

var idAlphabetSize = big.NewInt(int64(len(IDAlphabet)))

// GenerateID returns n characters drawn uniformly from IDAlphabet using crypto/rand.
// n <= 0 means DefaultIDLength.
func GenerateID(n int) (string, error) {
	if n <= 0 {
		n = DefaultIDLength
	}
	out := make([]byte, n)
	for i := range out {
		// rand.Int is uniform over [0, max), no modulo bias
		v, err := rand.Int(rand.Reader, idAlphabetSize)
		if err != nil {
			return "", err
		}
		out[i] = IDAlphabet[v.Int64()]
	}
	return string(out), nil
}
