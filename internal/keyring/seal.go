package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters.
const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var (
	ErrWeakPassword  = errors.New("password too short")
	ErrWrongPassword = errors.New("wrong password")
)

// SealedSeed is a mnemonic encrypted with Argon2id + AES-256-GCM.
type SealedSeed struct {
	Version     int    `json:"version"`
	Ciphertext  []byte `json:"ciphertext"`
	Salt        []byte `json:"salt"`
	Nonce       []byte `json:"nonce"`
	Time        uint32 `json:"time"`
	Memory      uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
}

// Seal encrypts mnemonic under password.
func Seal(mnemonic, password string) (*SealedSeed, error) {
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: need at least %d characters", ErrWeakPassword, MinPasswordLength)
	}
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	sealed := &SealedSeed{
		Version:     1,
		Salt:        salt,
		Time:        argon2Time,
		Memory:      argon2Memory,
		Parallelism: argon2Parallelism,
	}
	gcm, err := sealed.cipher(password)
	if err != nil {
		return nil, err
	}
	sealed.Nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(sealed.Nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed.Ciphertext = gcm.Seal(nil, sealed.Nonce, []byte(mnemonic), nil)
	return sealed, nil
}

// Open decrypts the mnemonic.
func (s *SealedSeed) Open(password string) (string, error) {
	gcm, err := s.cipher(password)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, s.Nonce, s.Ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	defer clear(plaintext)
	return string(plaintext), nil
}

func (s *SealedSeed) cipher(password string) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), s.Salt, s.Time, s.Memory, s.Parallelism, argon2KeyLen)
	defer clear(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
