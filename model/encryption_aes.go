package model

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/secure/precis"
)

// EncryptAES encrypts `data` with AES-CBC: a random 16-byte
// initialization vector is prepended, and the input is padded
// following PKCS#7.
func EncryptAES(key, data []byte) ([]byte, error) {
	// pad data to aes.BlockSize
	l := len(data) % aes.BlockSize
	c := byte(aes.BlockSize - l)
	data = append(data, bytes.Repeat([]byte{c}, int(c))...)
	// now, len(data) >= 16 and len(data)%16 == 0

	block := make([]byte, aes.BlockSize+len(data)) // room for the IV
	iv := block[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	cb, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	mode := cipher.NewCBCEncrypter(cb, iv)
	mode.CryptBlocks(block[aes.BlockSize:], data)
	return block, nil
}

// DecryptAES is the inverse of EncryptAES: the initialization vector
// is read from the first 16 bytes, and the padding removed.
func DecryptAES(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, errors.New("DecryptAES: ciphertext too short")
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, errors.New("DecryptAES: ciphertext not a multiple of the block size")
	}
	cb, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := data[:aes.BlockSize]
	out := make([]byte, len(data)-aes.BlockSize)
	mode := cipher.NewCBCDecrypter(cb, iv)
	mode.CryptBlocks(out, data[aes.BlockSize:])

	// remove padding
	// some writers do not pad correctly: be tolerant
	if n := len(out); n > 0 && out[n-1] <= aes.BlockSize {
		out = out[:n-int(out[n-1])]
	}
	return out, nil
}

// aes256NoPad crypts with a zero initialization vector and no padding,
// as used for the OE, UE and key wrapping entries.
func aes256NoPad(key, data []byte, decrypt bool) []byte {
	cb, _ := aes.NewCipher(key)
	var iv [aes.BlockSize]byte
	out := make([]byte, len(data))
	if decrypt {
		cipher.NewCBCDecrypter(cb, iv[:]).CryptBlocks(out, data)
	} else {
		cipher.NewCBCEncrypter(cb, iv[:]).CryptBlocks(out, data)
	}
	return out
}

// normalizePassword applies the OpaqueString profile (the successor of
// SASLprep) and truncates to 127 bytes, as required for revision 6.
func normalizePassword(password string) []byte {
	out, err := precis.OpaqueString.String(password)
	if err != nil {
		out = password // use the raw bytes for degenerate inputs
	}
	if len(out) > 127 {
		out = out[:127]
	}
	return []byte(out)
}

func validationSalt(bb []byte) []byte { return bb[32:40] }

func keySalt(bb []byte) []byte { return bb[40:48] }

// hardenedHash implements the iterated SHA-256/384/512 schedule of
// revision 6 (Algorithm 2.B). For revision 5 it degrades to a single
// SHA-256.
func hardenedHash(revision uint8, password, salt, userHash []byte) []byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	h.Write(userHash)
	k := h.Sum(nil)
	if revision == 5 {
		return k
	}

	var e []byte
	for i := 0; ; i++ {
		k1 := make([]byte, 0, 64*(len(password)+len(k)+len(userHash)))
		for j := 0; j < 64; j++ {
			k1 = append(k1, password...)
			k1 = append(k1, k...)
			k1 = append(k1, userHash...)
		}
		e = aesCBCNoPad(k[:16], k[16:32], k1)
		var mod int
		for _, b := range e[:16] {
			mod += int(b)
		}
		switch mod % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		case 2:
			s := sha512.Sum512(e)
			k = s[:]
		}
		if i >= 63 && int(e[len(e)-1]) <= i-32 {
			break
		}
	}
	return k[:32]
}

// AES-CBC with an explicit initialization vector and no padding
func aesCBCNoPad(key, iv, data []byte) []byte {
	cb, _ := aes.NewCipher(key)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(cb, iv).CryptBlocks(out, data)
	return out
}

// authUserPasswordAES256 implements Algorithm 11 (revisions 5 and 6).
// On success it returns the file encryption key.
func (e EncryptionStandard) authUserPasswordAES256(password string) ([]byte, bool) {
	if len(e.U) < 48 || len(e.UE) < 32 {
		return nil, false
	}
	pw := normalizePassword(password)
	if !bytes.Equal(hardenedHash(e.R, pw, validationSalt(e.U), nil), e.U[:32]) {
		return nil, false
	}
	ikey := hardenedHash(e.R, pw, keySalt(e.U), nil)
	return aes256NoPad(ikey, e.UE[:32], true), true
}

// authOwnerPasswordAES256 implements Algorithm 12 (revisions 5 and 6).
func (e EncryptionStandard) authOwnerPasswordAES256(password string) ([]byte, bool) {
	if len(e.O) < 48 || len(e.U) < 48 || len(e.OE) < 32 {
		return nil, false
	}
	pw := normalizePassword(password)
	if !bytes.Equal(hardenedHash(e.R, pw, validationSalt(e.O), e.U[:48]), e.O[:32]) {
		return nil, false
	}
	ikey := hardenedHash(e.R, pw, keySalt(e.O), e.U[:48])
	return aes256NoPad(ikey, e.OE[:32], true), true
}

// ValidatePermissions decrypts the Perms entry and checks its
// consistency against the P entry (revisions 5 and 6).
func (e EncryptionStandard) ValidatePermissions(fileKey []byte, p UserPermissions) bool {
	var perms [16]byte
	cb, err := aes.NewCipher(fileKey)
	if err != nil {
		return false
	}
	cb.Decrypt(perms[:], e.Perms[:])
	if string(perms[9:12]) != "adb" {
		return false
	}
	return binary32(perms[:4]) == uint32(p)
}

func binary32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// SetFileKey installs a key recovered by password authentication,
// so that the handler may crypt content again.
func (e *EncryptionStandard) SetFileKey(key []byte, useAES bool) {
	e.fileKey = append([]byte(nil), key...)
	e.aes = useAES
}

// NewStandardEncryption builds a ready to use Encrypt dictionary for
// the Standard security handler.
//
// `revision` selects the algorithms:
//   - 2: RC4, 40-bit key
//   - 3: RC4, up to 128-bit key (`keyLength` bytes)
//   - 4: crypt filters; AES-128 when `useAES`, RC4 otherwise
//   - 6: AES-256
//
// `id` is the first element of the file identifier, needed up to
// revision 4. Both passwords may be empty.
func NewStandardEncryption(revision uint8, userPassword, ownerPassword string,
	perms UserPermissions, keyLength int, id string, useAES, encryptMetadata bool) (Encrypt, error) {
	out := Encrypt{Filter: "Standard", P: perms}
	handler := EncryptionStandard{R: revision, DontEncryptMetadata: !encryptMetadata}

	switch revision {
	case 2:
		out.V = KeyRC4V1
		keyLength = 5
	case 3:
		out.V = KeyRC4Ext
		if keyLength == 0 {
			keyLength = 16
		}
	case 4:
		out.V = KeyCryptFilters
		keyLength = 16
		cfm := Name("V2")
		if useAES {
			cfm = "AESV2"
			handler.aes = true
		}
		out.CF = map[Name]CrypFilter{
			"StdCF": {CFM: cfm, AuthEvent: "DocOpen", Length: keyLength},
		}
		out.StmF, out.StrF = "StdCF", "StdCF"
	case 5, 6:
		out.V = KeyAES256
		keyLength = 32
		handler.aes = true
		out.CF = map[Name]CrypFilter{
			"StdCF": {CFM: "AESV3", AuthEvent: "DocOpen", Length: keyLength},
		}
		out.StmF, out.StrF = "StdCF", "StdCF"
	default:
		return out, fmt.Errorf("unsupported standard security handler revision %d", revision)
	}
	out.Length = uint8(keyLength)

	if revision >= 5 {
		if err := handler.setupAES256(userPassword, ownerPassword, perms, encryptMetadata); err != nil {
			return out, err
		}
	} else {
		handler.O = generateOwnerHash(revision, keyLength, userPassword, ownerPassword)
		handler.fileKey = fileEncryptionKey(userPassword, handler.O, perms, id, keyLength, revision, encryptMetadata)
		handler.U = generateUserHash(revision, handler.fileKey, id)
	}

	out.EncryptionHandler = handler
	return out, nil
}

// setupAES256 generates the file key and the O, U, OE, UE and Perms
// entries (Algorithms 8, 9 and 10).
func (e *EncryptionStandard) setupAES256(userPassword, ownerPassword string,
	perms UserPermissions, encryptMetadata bool) error {
	fileKey := make([]byte, 32)
	salts := make([]byte, 32) // validation + key salts for U and O
	if _, err := io.ReadFull(rand.Reader, fileKey); err != nil {
		return err
	}
	if _, err := io.ReadFull(rand.Reader, salts); err != nil {
		return err
	}

	upw := normalizePassword(userPassword)
	opw := normalizePassword(ownerPassword)

	// U = hash(upw + validation salt) + validation salt + key salt
	uvs, uks := salts[0:8], salts[8:16]
	e.U = append(append(hardenedHash(e.R, upw, uvs, nil), uvs...), uks...)
	ikey := hardenedHash(e.R, upw, uks, nil)
	e.UE = aes256NoPad(ikey, fileKey, false)

	// O is computed over the final U value
	ovs, oks := salts[16:24], salts[24:32]
	e.O = append(append(hardenedHash(e.R, opw, ovs, e.U[:48]), ovs...), oks...)
	ikey = hardenedHash(e.R, opw, oks, e.U[:48])
	e.OE = aes256NoPad(ikey, fileKey, false)

	// Perms: P (4 bytes, low-order first), 0xffffffff, metadata flag,
	// "adb", 4 random bytes; AES-ECB with the file key
	var block [16]byte
	copy(block[:4], perms.bytes())
	block[4], block[5], block[6], block[7] = 0xff, 0xff, 0xff, 0xff
	block[8] = 'F'
	if encryptMetadata {
		block[8] = 'T'
	}
	copy(block[9:12], "adb")
	if _, err := io.ReadFull(rand.Reader, block[12:]); err != nil {
		return err
	}
	cb, err := aes.NewCipher(fileKey)
	if err != nil {
		return err
	}
	cb.Encrypt(e.Perms[:], block[:])

	e.fileKey = fileKey
	return nil
}
