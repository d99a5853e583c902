// Package auth resolves a presented API credential into an
// authenticated context, keeping the crypto primitives in a single
// small file next to the service that calls them.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// TokenPrefix namespaces every generated credential secret so it is
// recognizable at a glance in logs, support tickets, and config files.
const TokenPrefix = "hea_"

// argon2Params mirrors the defaults the original Rust service baked
// into its password-hash calls: memory in KiB, iteration count,
// parallelism, and output key length.
type argon2Params struct {
	memoryKiB   uint32
	iterations  uint32
	parallelism uint8
	keyLen      uint32
	saltLen     uint32
}

var defaultArgon2Params = argon2Params{
	memoryKiB:   19 * 1024,
	iterations:  2,
	parallelism: 1,
	keyLen:      32,
	saltLen:     16,
}

// GenerateToken returns a new credential secret: TokenPrefix followed
// by 32 hex characters of crypto/rand entropy, 36 characters total.
func GenerateToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return TokenPrefix + hex.EncodeToString(buf), nil
}

// HashToken hashes a credential secret with Argon2id under a random
// salt and encodes the result in the standard
// $argon2id$v=19$m=...,t=...,p=...$salt$hash form, so hashing the same
// secret twice yields two different, independently verifiable strings.
func HashToken(secret string) (string, error) {
	p := defaultArgon2Params

	salt := make([]byte, p.saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: hash token: %w", err)
	}

	hash := argon2.IDKey([]byte(secret), salt, p.iterations, p.memoryKiB, p.parallelism, p.keyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memoryKiB, p.iterations, p.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	)
	return encoded, nil
}

// IsArgon2Hash reports whether a stored credential hash begins with
// the marker this package encodes, letting the resolver skip rows
// that were hand-imported with some other hash format.
func IsArgon2Hash(encoded string) bool {
	return strings.HasPrefix(encoded, "$argon2id$")
}

// VerifyToken reports whether secret matches the Argon2id-encoded
// hash. A malformed encoded string is treated as a non-match rather
// than an error, matching the resolver's "silently skip" rule for
// hand-imported rows.
func VerifyToken(secret, encoded string) bool {
	params, salt, hash, err := decodeArgon2(encoded)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(secret), salt, params.iterations, params.memoryKiB, params.parallelism, uint32(len(hash)))
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}

func decodeArgon2(encoded string) (argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return argon2Params{}, nil, nil, fmt.Errorf("auth: not an argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return argon2Params{}, nil, nil, fmt.Errorf("auth: malformed version segment: %w", err)
	}

	var p argon2Params
	var mem, iter uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iter, &par); err != nil {
		return argon2Params{}, nil, nil, fmt.Errorf("auth: malformed params segment: %w", err)
	}
	p.memoryKiB, p.iterations, p.parallelism = mem, iter, par

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Params{}, nil, nil, fmt.Errorf("auth: malformed salt: %w", err)
	}

	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argon2Params{}, nil, nil, fmt.Errorf("auth: malformed hash: %w", err)
	}

	return p, salt, hash, nil
}
