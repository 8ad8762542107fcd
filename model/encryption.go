package model

// adapted from the work of Klemen VODOPIVEC and Kurt Jung

import (
	"crypto/md5"
	"crypto/rc4"
	"encoding/binary"
	"fmt"
	"strings"
)

var padding = [...]byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// UserPermissions is a flag field.
// See Table 22 – User access permissions in the PDF SPEC.
// Permissions are advisory: they are preserved on round-trip,
// but never enforced by this library.
type UserPermissions uint32

const (
	PermissionPrint        UserPermissions = 1 << (3 - 1)  // Print the document.
	PermissionModify       UserPermissions = 1 << (4 - 1)  // Modify the contents of the document.
	PermissionCopy         UserPermissions = 1 << (5 - 1)  // Copy or otherwise extract text and graphics.
	PermissionAdd          UserPermissions = 1 << (6 - 1)  // Add or modify annotations, fill in form fields.
	PermissionFill         UserPermissions = 1 << (9 - 1)  // Fill in existing form fields.
	PermissionExtract      UserPermissions = 1 << (10 - 1) // Extract text and graphics.
	PermissionAssemble     UserPermissions = 1 << (11 - 1) // Insert, rotate, or delete pages.
	PermissionPrintDigital UserPermissions = 1 << (12 - 1) // Print to a faithful digital representation.
)

// write u as 4 bytes, low-order byte first.
func (u UserPermissions) bytes() []byte {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], uint32(u))
	return out[:]
}

// EncryptionAlgorithm is the code of the /V entry, specifying the
// algorithm used to encrypt and decrypt the document.
type EncryptionAlgorithm uint8

const (
	_ EncryptionAlgorithm = iota
	KeyRC4V1               // 40-bit RC4
	KeyRC4Ext              // RC4 with key length greater than 40 bits
	_
	KeyCryptFilters // crypt filters (revision 4)
	KeyAES256       // AES-256 (revisions 5 and 6)
)

// Encrypt stores the encryption-related information of a document.
// It is filled when reading an encrypted PDF file; to encrypt a
// document being written, use NewStandardEncryption, which also
// derives the file key from the passwords.
type Encrypt struct {
	EncryptionHandler EncryptionHandler
	Filter            Name
	SubFilter         Name
	V                 EncryptionAlgorithm
	// key length in bytes, from 5 to 16, or 32; optional, default to 5
	// (written in the PDF as a bit length)
	Length uint8
	CF     map[Name]CrypFilter // optional
	StmF   Name                // optional
	StrF   Name                // optional
	EFF    Name                // optional
	P      UserPermissions
}

func (e Encrypt) Clone() Encrypt {
	out := e
	if e.EncryptionHandler != nil {
		out.EncryptionHandler = e.EncryptionHandler.Clone()
	}
	if e.CF != nil {
		out.CF = make(map[Name]CrypFilter, len(e.CF))
		for k, v := range e.CF {
			out.CF[k] = v.Clone()
		}
	}
	return out
}

// PDFString returns the encryption dictionary.
// Strings inside it are never encrypted.
func (e Encrypt) PDFString() string {
	var b strings.Builder
	b.WriteString("<<")
	fmt.Fprintf(&b, "/Filter%s /V %d /P %d", e.Filter, e.V, int32(uint32(e.P)))
	if e.Length != 0 {
		fmt.Fprintf(&b, " /Length %d", int(e.Length)*8)
	}
	if e.SubFilter != "" {
		fmt.Fprintf(&b, " /SubFilter%s", e.SubFilter)
	}
	if e.EncryptionHandler != nil {
		b.WriteString(" " + e.EncryptionHandler.encryptionAddFields())
	}
	if len(e.CF) != 0 {
		b.WriteString(" /CF <<")
		for n, v := range e.CF {
			fmt.Fprintf(&b, "%s %s ", n, v.pdfString(false))
		}
		b.WriteString(">>")
	}
	if e.StmF != "" {
		fmt.Fprintf(&b, " /StmF%s", e.StmF)
	}
	if e.StrF != "" {
		fmt.Fprintf(&b, " /StrF%s", e.StrF)
	}
	if e.EFF != "" {
		fmt.Fprintf(&b, " /EFF%s", e.EFF)
	}
	b.WriteString(">>")
	return b.String()
}

// CrypFilter is an entry of the /CF crypt filter map.
type CrypFilter struct {
	CFM       Name // optional
	AuthEvent Name // optional
	Length    int  // optional, in bytes

	// byte strings, required for public-key security handlers;
	// in a Crypt filter decode parameter dictionary, a one element
	// array is written directly as a string
	Recipients []string
	// optional, default to false
	// (written in the PDF under the key /EncryptMetadata)
	DontEncryptMetadata bool
}

func (c CrypFilter) pdfString(fromCrypt bool) string {
	out := "<<"
	if c.CFM != "" {
		out += "/CFM" + c.CFM.String()
	}
	if c.AuthEvent != "" {
		out += "/AuthEvent" + c.AuthEvent.String()
	}
	if c.Length != 0 {
		out += fmt.Sprintf("/Length %d", c.Length)
	}
	if fromCrypt && len(c.Recipients) == 1 {
		out += "/Recipients " + EscapeByteString([]byte(c.Recipients[0]))
	}
	out += fmt.Sprintf("/EncryptMetadata %v>>", !c.DontEncryptMetadata)
	return out
}

// Clone returns a deep copy.
func (c CrypFilter) Clone() CrypFilter {
	out := c
	out.Recipients = append([]string(nil), c.Recipients...)
	return out
}

// EncryptionHandler is either EncryptionStandard or EncryptionPublicKey.
type EncryptionHandler interface {
	encryptionAddFields() string

	// Clone returns a deep copy, preserving the concrete type.
	Clone() EncryptionHandler

	// Crypt transforms `data`, using (`n`, `g`) as the object identity
	// of its context, and returns the encrypted bytes.
	Crypt(n, g int, data []byte) ([]byte, error)
}

// EncryptionStandard implements the Standard security handler,
// revisions 2 to 6.
type EncryptionStandard struct {
	R uint8 // 2, 3, 4, 5 or 6
	// 32 bytes up to revision 4, 48 bytes for revisions 5 and 6
	O, U []byte
	// revisions 5 and 6 only
	OE, UE []byte
	Perms  [16]byte
	// optional, default to false
	// (written in the PDF under the key /EncryptMetadata)
	DontEncryptMetadata bool

	// needed to encrypt, but not written in the PDF
	fileKey []byte
	aes     bool // AESV2 or AESV3 crypt filters
}

// FileKey exposes the derived encryption key,
// needed by readers to decrypt the document content.
func (e EncryptionStandard) FileKey() []byte { return e.fileKey }

// UseAES reports whether stream and string content uses
// AES-CBC rather than RC4.
func (e EncryptionStandard) UseAES() bool { return e.aes }

func (e EncryptionStandard) encryptionAddFields() string {
	var b strings.Builder
	fmt.Fprintf(&b, "/R %d /O %s /U %s", e.R,
		EscapeHexString(e.O), EscapeHexString(e.U))
	if e.R >= 5 {
		fmt.Fprintf(&b, " /OE %s /UE %s /Perms %s",
			EscapeHexString(e.OE), EscapeHexString(e.UE), EscapeHexString(e.Perms[:]))
	}
	fmt.Fprintf(&b, " /EncryptMetadata %v", !e.DontEncryptMetadata)
	return b.String()
}

func (e EncryptionStandard) Clone() EncryptionHandler {
	out := e
	out.O = append([]byte(nil), e.O...)
	out.U = append([]byte(nil), e.U...)
	out.OE = append([]byte(nil), e.OE...)
	out.UE = append([]byte(nil), e.UE...)
	out.fileKey = append([]byte(nil), e.fileKey...)
	return out
}

// Crypt encrypts `data` with the key derived for object (`n`, `g`).
func (e EncryptionStandard) Crypt(n, g int, data []byte) ([]byte, error) {
	if e.R >= 5 { // the file key is used directly
		return EncryptAES(e.fileKey, data)
	}
	key := ObjectEncryptionKey(e.fileKey, n, g, e.aes)
	if e.aes {
		return EncryptAES(key, data)
	}
	return CryptRC4(key, data), nil
}

// ObjectEncryptionKey derives the key used to encrypt or decrypt the
// strings and stream content of the object (`n`, `g`), for security
// handlers of revision 4 or less: the low three bytes of the object
// number and the low two bytes of the generation are appended to the
// file key (plus the AES salt), hashed with MD5 and truncated.
func ObjectEncryptionKey(fileKey []byte, n, g int, aes bool) []byte {
	b := append(append([]byte(nil), fileKey...),
		byte(n), byte(n>>8), byte(n>>16),
		byte(g), byte(g>>8),
	)
	if aes {
		b = append(b, 0x73, 0x41, 0x6C, 0x54) // sAlT
	}
	sum := md5.Sum(b)
	size := len(fileKey) + 5
	if size > 16 {
		size = 16
	}
	return sum[0:size]
}

// CryptRC4 is its own inverse: it encrypts and decrypts.
func CryptRC4(key, data []byte) []byte {
	out := make([]byte, len(data))
	c, _ := rc4.NewCipher(key)
	c.XORKeyStream(out, data)
	return out
}

// pad or truncate a password to 32 bytes (Algorithm 2 step a)
func padPassword(password string) []byte {
	out := make([]byte, 32)
	n := copy(out, password)
	copy(out[n:], padding[:])
	return out
}

// fileEncryptionKey implements Algorithm 2, for revisions 4 or less.
func fileEncryptionKey(userPassword string, ownerHash []byte, p UserPermissions,
	id string, keyLength int, revision uint8, encryptMetadata bool) []byte {
	buf := padPassword(userPassword)
	buf = append(buf, ownerHash...)
	buf = append(buf, p.bytes()...)
	buf = append(buf, id...)
	if revision >= 4 && !encryptMetadata {
		buf = append(buf, 0xff, 0xff, 0xff, 0xff)
	}
	sum := md5.Sum(buf)
	if revision >= 3 {
		for i := 0; i < 50; i++ {
			sum = md5.Sum(sum[0:keyLength])
		}
	}
	return sum[0:keyLength]
}

// generateOwnerHash implements Algorithm 3.
func generateOwnerHash(revision uint8, keyLength int, userPassword, ownerPassword string) []byte {
	tmp := md5.Sum(padPassword(ownerPassword))
	if revision >= 3 {
		for i := 0; i < 50; i++ {
			tmp = md5.Sum(tmp[:])
		}
	}
	firstKey := tmp[0:keyLength]
	v := CryptRC4(firstKey, padPassword(userPassword))
	if revision >= 3 {
		xor19(v, firstKey)
	}
	return v
}

// repeatedly crypt `data` in place with the key xored
// with the iteration counter (Algorithms 3 and 5)
func xor19(data []byte, startKey []byte) {
	newKey := make([]byte, len(startKey))
	for i := 1; i <= 19; i++ {
		for j, b := range startKey {
			newKey[j] = b ^ byte(i)
		}
		copy(data, CryptRC4(newKey, data))
	}
}

// generateUserHash implements Algorithms 4 and 5.
func generateUserHash(revision uint8, fileKey []byte, id string) []byte {
	if revision >= 3 {
		buf := append(append([]byte(nil), padding[:]...), id...)
		hash := md5.Sum(buf)
		out := CryptRC4(fileKey, hash[:])
		xor19(out, fileKey)
		return append(out, make([]byte, 16)...) // pad with zeros
	}
	return CryptRC4(fileKey, padding[:])
}

// AuthenticateUserPassword checks `password` against the user hash of
// the file (Algorithm 6 for revisions 4 or less, Algorithm 11 for
// revisions 5 and 6). On success it returns the file encryption key.
func (e EncryptionStandard) AuthenticateUserPassword(password string, p UserPermissions, id string, keyLength int, encryptMetadata bool) ([]byte, bool) {
	if e.R >= 5 {
		return e.authUserPasswordAES256(password)
	}
	key := fileEncryptionKey(password, e.O, p, id, keyLength, e.R, encryptMetadata)
	computed := generateUserHash(e.R, key, id)
	n := len(computed)
	if e.R >= 3 {
		n = 16 // the trailing 16 bytes are arbitrary padding
	}
	if len(e.U) < n || string(computed[:n]) != string(e.U[:n]) {
		return nil, false
	}
	return key, true
}

// AuthenticateOwnerPassword checks `password` against the owner hash of
// the file (Algorithm 7 for revisions 4 or less, Algorithm 12 for
// revisions 5 and 6). On success it returns the file encryption key.
func (e EncryptionStandard) AuthenticateOwnerPassword(password string, p UserPermissions, id string, keyLength int, encryptMetadata bool) ([]byte, bool) {
	if e.R >= 5 {
		return e.authOwnerPasswordAES256(password)
	}
	tmp := md5.Sum(padPassword(password))
	if e.R >= 3 {
		for i := 0; i < 50; i++ {
			tmp = md5.Sum(tmp[:])
		}
	}
	firstKey := tmp[0:keyLength]

	// undo the RC4 layers to recover the padded user password
	userPw := append([]byte(nil), e.O...)
	if e.R == 2 {
		userPw = CryptRC4(firstKey, userPw)
	} else {
		newKey := make([]byte, len(firstKey))
		for i := 19; i >= 0; i-- {
			for j, b := range firstKey {
				newKey[j] = b ^ byte(i)
			}
			userPw = CryptRC4(newKey, userPw)
		}
	}

	// the decrypted O value is the padded user password: authenticate
	// with it as in Algorithm 6 (padding a 32-byte input is a no-op)
	key := fileEncryptionKey(string(userPw), e.O, p, id, keyLength, e.R, encryptMetadata)

	computed := generateUserHash(e.R, key, id)
	n := len(computed)
	if e.R >= 3 {
		n = 16
	}
	if len(e.U) < n || string(computed[:n]) != string(e.U[:n]) {
		return nil, false
	}
	return key, true
}
