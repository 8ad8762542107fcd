package model

import (
	"crypto"
	"crypto/sha1"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"

	"go.mozilla.org/pkcs7"
)

// EncryptionPublicKey implements the Adobe.PubSec security handler.
// Each recipient carries a DER encoded PKCS#7 envelope, whose decrypted
// content is a 20-byte seed followed by 4 permission bytes.
type EncryptionPublicKey struct {
	Recipients []string // raw PKCS#7 blobs, written under /Recipients

	fileKey []byte
}

func (e EncryptionPublicKey) encryptionAddFields() string {
	chunks := make([]string, len(e.Recipients))
	for i, s := range e.Recipients {
		chunks[i] = EscapeHexString([]byte(s))
	}
	return fmt.Sprintf("/Recipients [%s]", strings.Join(chunks, " "))
}

func (e EncryptionPublicKey) Clone() EncryptionHandler {
	out := e
	out.Recipients = append([]string(nil), e.Recipients...)
	out.fileKey = append([]byte(nil), e.fileKey...)
	return out
}

// Crypt requires a file key recovered by Authenticate.
func (e EncryptionPublicKey) Crypt(n, g int, data []byte) ([]byte, error) {
	if e.fileKey == nil {
		return nil, errors.New("public-key handler: no credentials supplied")
	}
	key := ObjectEncryptionKey(e.fileKey, n, g, false)
	return CryptRC4(key, data), nil
}

// FileKey exposes the key recovered by Authenticate.
func (e EncryptionPublicKey) FileKey() []byte { return e.fileKey }

// Authenticate recovers the file encryption key with the credentials
// of one of the recipients: each envelope is tried in turn. The key is
// derived from the 20-byte seed and every recipient blob, hashed with
// SHA-1 and truncated to `keyLength` bytes.
func (e *EncryptionPublicKey) Authenticate(cert *x509.Certificate, pkey crypto.PrivateKey,
	keyLength int, encryptMetadata bool) error {
	var seed []byte
	for _, blob := range e.Recipients {
		p7, err := pkcs7.Parse([]byte(blob))
		if err != nil {
			continue
		}
		content, err := p7.Decrypt(cert, pkey)
		if err != nil || len(content) < 20 {
			continue
		}
		seed = content[:20]
		break
	}
	if seed == nil {
		return errors.New("public-key handler: no recipient matches the given credentials")
	}

	h := sha1.New()
	h.Write(seed)
	for _, blob := range e.Recipients {
		h.Write([]byte(blob))
	}
	if !encryptMetadata {
		h.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}
	sum := h.Sum(nil)
	if keyLength <= 0 || keyLength > len(sum) {
		keyLength = len(sum)
	}
	e.fileKey = sum[:keyLength]
	return nil
}
