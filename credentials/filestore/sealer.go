package filestore

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	sealVersion = 1
	saltLength  = 16

	// Argon2id parameters for deriving the file key.
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var additionalData = []byte("authclient-credentials-v1")

// sealedFile is the on-disk envelope of an encrypted credentials file.
type sealedFile struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Data    []byte `json:"data"`
}

// sealer encrypts documents with XChaCha20-Poly1305. The key is derived from the
// passphrase and a per-file salt, and cached per salt.
type sealer struct {
	passphrase []byte
	salt       []byte
	key        []byte
}

func newSealer(passphrase string) (*sealer, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	sl := &sealer{passphrase: []byte(passphrase)}
	sl.useSalt(salt)
	return sl, nil
}

func (sl *sealer) useSalt(salt []byte) {
	sl.salt = salt
	sl.key = argon2.IDKey(sl.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

func (sl *sealer) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(sl.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return json.Marshal(sealedFile{
		Version: sealVersion,
		Salt:    sl.salt,
		Nonce:   nonce,
		Data:    aead.Seal(nil, nonce, plaintext, additionalData),
	})
}

// open decrypts an envelope. The file's salt is adopted so later writes keep it.
func (sl *sealer) open(data []byte) ([]byte, error) {
	var f sealedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("reading envelope: %w", err)
	}
	if f.Version != sealVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", f.Version)
	}
	if len(f.Salt) != saltLength || len(f.Nonce) != chacha20poly1305.NonceSizeX {
		return nil, errors.New("malformed envelope")
	}
	if string(f.Salt) != string(sl.salt) {
		sl.useSalt(f.Salt)
	}
	aead, err := chacha20poly1305.NewX(sl.key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, f.Nonce, f.Data, additionalData)
	if err != nil {
		return nil, errors.New("decryption failed")
	}
	return plaintext, nil
}
