package utils

import (
	"crypto/rand"
	"math/big"
)

const roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateRoomCode returns a random uppercase alphanumeric code of the given
// length, suitable for sharing out of band.
func GenerateRoomCode(length int) (string, error) {
	code := make([]byte, length)
	max := big.NewInt(int64(len(roomCodeCharset)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = roomCodeCharset[n.Int64()]
	}
	return string(code), nil
}
