package users

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	defaultArgonTime    uint32 = 1
	defaultArgonMemory  uint32 = 64 * 1024
	defaultArgonThreads uint8  = 4
	defaultArgonKeyLen  uint32 = 32
	defaultSaltLength          = 16
	argonAlgorithm             = "argon2id"
)

var errMalformedHash = errors.New("users: malformed credential hash")

// PasswordHasher derives and verifies argon2id credential hashes encoded in PHC string format.
type PasswordHasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
}

// NewPasswordHasher returns a hasher with production parameters.
func NewPasswordHasher() PasswordHasher {
	return PasswordHasher{
		Time:    defaultArgonTime,
		Memory:  defaultArgonMemory,
		Threads: defaultArgonThreads,
		KeyLen:  defaultArgonKeyLen,
	}
}

// Hash derives a salted hash for the secret.
func (h PasswordHasher) Hash(secret string) (string, error) {
	salt := make([]byte, defaultSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, h.Time, h.Memory, h.Threads, h.KeyLen)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argonAlgorithm,
		argon2.Version,
		h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify re-derives the hash with the parameters and salt stored in encoded and compares in constant time.
func (h PasswordHasher) Verify(encoded, secret string) (bool, error) {
	params, salt, expected, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(secret), salt, params.Time, params.Memory, params.Threads, uint32(len(expected)))
	return subtle.ConstantTimeCompare(expected, candidate) == 1, nil
}

func decodeHash(encoded string) (PasswordHasher, []byte, []byte, error) {
	segments := strings.Split(encoded, "$")
	if len(segments) != 6 || segments[1] != argonAlgorithm {
		return PasswordHasher{}, nil, nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(segments[2], "v=%d", &version); err != nil {
		return PasswordHasher{}, nil, nil, fmt.Errorf("%w: %v", errMalformedHash, err)
	}
	if version != argon2.Version {
		return PasswordHasher{}, nil, nil, fmt.Errorf("%w: unsupported version %d", errMalformedHash, version)
	}

	var params PasswordHasher
	if _, err := fmt.Sscanf(segments[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return PasswordHasher{}, nil, nil, fmt.Errorf("%w: %v", errMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(segments[4])
	if err != nil {
		return PasswordHasher{}, nil, nil, fmt.Errorf("%w: %v", errMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(segments[5])
	if err != nil || len(key) == 0 {
		return PasswordHasher{}, nil, nil, errMalformedHash
	}
	params.KeyLen = uint32(len(key))
	return params, salt, key, nil
}
