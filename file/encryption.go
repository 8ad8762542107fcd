package file

import (
	"github.com/benoitkugler/pdfcore/model"
)

// decryptor applies the security handler transparently on read:
// callers of the store never see ciphertext.
type decryptor struct {
	enc model.Encrypt // as found in the PDF file

	key []byte // the file encryption key
	aes bool   // AES-CBC instead of RC4
	r   uint8  // standard handler revision
}

// setupEncryption reads the /Encrypt entry of the trailer, chooses the
// handler strategy from its revision, and authenticates the password
// given in the configuration.
func (ctx *context) setupEncryption() error {
	if ctx.trailer.encrypt == nil { // not encrypted
		return nil
	}

	enc, err := ctx.processEncryptDict()
	if err != nil {
		return err
	}

	info := &decryptor{enc: enc}

	if enc.StmF != "" && enc.StmF != "Identity" {
		d, ok := enc.CF[enc.StmF]
		if !ok {
			return newError(MissingKey, -1, "missing entry for StmF %s in CF encrypt dict", enc.StmF)
		}
		info.aes, err = supportedCFEntry(d)
		if err != nil {
			return err
		}
	}

	switch handler := enc.EncryptionHandler.(type) {
	case model.EncryptionStandard:
		if err = info.authenticateStandard(handler, ctx.Password, ctx.trailer.id[0], enc); err != nil {
			return err
		}
	case model.EncryptionPublicKey:
		return newError(EncryptionNotSupported, -1,
			"public-key security handler requires recipient credentials; see model.EncryptionPublicKey.Authenticate")
	default:
		return newError(EncryptionNotSupported, -1, "unsupported security handler %s", enc.Filter)
	}

	ctx.enc = info
	return nil
}

func (info *decryptor) authenticateStandard(handler model.EncryptionStandard, password, id string, enc model.Encrypt) error {
	info.r = handler.R
	switch handler.R {
	case 2, 3, 4:
	case 5, 6:
	default:
		return newError(EncryptionNotSupported, -1, "standard security handler revision %d", handler.R)
	}

	keyLength := int(enc.Length)
	if keyLength == 0 {
		keyLength = 5
	}
	encryptMetadata := !handler.DontEncryptMetadata

	// both passwords act the same for reading: try user then owner
	key, ok := handler.AuthenticateUserPassword(password, enc.P, id, keyLength, encryptMetadata)
	if !ok {
		key, ok = handler.AuthenticateOwnerPassword(password, enc.P, id, keyLength, encryptMetadata)
	}
	if !ok {
		return newError(EncryptionNotSupported, -1, "invalid password")
	}

	// the Perms entry is validated when present (revisions 5 and 6)
	if handler.R >= 5 && handler.Perms != [16]byte{} {
		if !handler.ValidatePermissions(key, enc.P) {
			return newError(EncryptionNotSupported, -1, "inconsistent Perms entry")
		}
	}

	info.key = key
	return nil
}

// supportedCFEntry returns true if AES should be used, or an error if
// the fields are invalid.
func supportedCFEntry(d model.CrypFilter) (bool, error) {
	cfm := d.CFM
	if cfm != "" && cfm != "V2" && cfm != "AESV2" && cfm != "AESV3" {
		return false, newError(EncryptionNotSupported, -1, "invalid CFM entry %s", cfm)
	}
	// d.AuthEvent is not checked: when the filter is used as StrF or
	// StmF, a conforming reader behaves as if the value is DocOpen
	if l := d.Length; l != 0 && (l < 5 || l > 16) && l != 32 {
		return false, newError(EncryptionNotSupported, -1, "invalid Length entry %d", l)
	}
	return cfm == "AESV2" || cfm == "AESV3", nil
}

// objectKey derives the key for the object (n, g): revisions 5 and 6
// use the file key directly, without object-specific derivation.
func (info *decryptor) objectKey(n, g int) []byte {
	if info.r >= 5 {
		return info.key
	}
	return model.ObjectEncryptionKey(info.key, n, g, info.aes)
}

func (info *decryptor) decryptBytes(data []byte, n, g int) ([]byte, error) {
	key := info.objectKey(n, g)
	if info.aes || info.r >= 5 {
		return model.DecryptAES(key, data)
	}
	return model.CryptRC4(key, data), nil
}

// decryptObject walks through the object and decrypts strings and
// stream content, using (n, g) as the decryption context.
func (info *decryptor) decryptObject(o model.Object, n, g int) (model.Object, error) {
	var err error
	switch o := o.(type) {
	case model.ObjHexLiteral:
		b, err := info.decryptBytes([]byte(o), n, g)
		return model.ObjHexLiteral(b), err
	case model.ObjStringLiteral:
		b, err := info.decryptBytes([]byte(o), n, g)
		return model.ObjStringLiteral(b), err
	case model.ObjArray:
		for i, v := range o {
			o[i], err = info.decryptObject(v, n, g)
			if err != nil {
				return nil, err
			}
		}
		return o, nil
	case *model.ObjDict:
		return info.decryptDict(o, n, g)
	case model.ObjStream:
		// the Crypt filter marks streams to leave alone
		if isCryptFilter(o.Args.Get("Filter")) {
			return o, nil
		}
		o.Content, err = info.decryptBytes(o.Content, n, g)
		if err != nil {
			return nil, err
		}
		// the ciphertext length is what /Length reports on disk:
		// patch it to the plain length for in-memory consumers
		o.Args.Set("Length", model.ObjInt(len(o.Content)))
		_, err = info.decryptDict(o.Args, n, g)
		return o, err
	default:
		return o, nil
	}
}

func (info *decryptor) decryptDict(d *model.ObjDict, n, g int) (model.Object, error) {
	var err error
	for _, k := range d.Keys() {
		// the strings of a signature dictionary Contents entry are
		// not encrypted, but this nuance is left to upper layers
		v, err2 := info.decryptObject(d.Get(k), n, g)
		if err2 != nil {
			return nil, err2
		}
		d.Set(k, v)
	}
	return d, err
}

func isCryptFilter(filter model.Object) bool {
	if filter == model.Name("Crypt") {
		return true
	}
	arr, ok := filter.(model.ObjArray)
	return ok && len(arr) >= 1 && arr[0] == model.Name("Crypt")
}

// processEncryptDict resolves and types the encryption dictionary.
// Strings appearing in it are never encrypted.
func (ctx *context) processEncryptDict() (model.Encrypt, error) {
	var out model.Encrypt

	encryptO, err := ctx.resolve(ctx.trailer.encrypt)
	if err != nil {
		return out, err
	}
	d, ok := encryptO.(*model.ObjDict)
	if !ok {
		return out, newError(MissingKey, -1, "invalid Encrypt entry: expected dict, got %T", encryptO)
	}

	out.Filter, _ = ctx.res(d.Get("Filter")).(model.Name)
	out.SubFilter, _ = ctx.res(d.Get("SubFilter")).(model.Name)

	v, _ := ctx.res(d.Get("V")).(model.ObjInt)
	out.V = model.EncryptionAlgorithm(v)

	length, _ := ctx.res(d.Get("Length")).(model.ObjInt)
	if length == 0 {
		length = 40
	}
	if length%8 != 0 {
		return out, newError(EncryptionNotSupported, -1, "field Length must be a multiple of 8")
	}
	out.Length = uint8(length / 8)

	if cf, _ := ctx.res(d.Get("CF")).(*model.ObjDict); cf.Len() != 0 {
		out.CF = make(map[model.Name]model.CrypFilter, cf.Len())
		for _, name := range cf.Keys() {
			out.CF[name] = ctx.processCryptFilter(cf.Get(name))
		}
	}
	out.StmF, _ = ctx.res(d.Get("StmF")).(model.Name)
	out.StrF, _ = ctx.res(d.Get("StrF")).(model.Name)
	out.EFF, _ = ctx.res(d.Get("EFF")).(model.Name)

	p, _ := ctx.res(d.Get("P")).(model.ObjInt)
	out.P = model.UserPermissions(uint32(int32(p)))

	if out.Filter == "Standard" {
		out.EncryptionHandler, err = ctx.processStandardSecurityHandler(d)
		if err != nil {
			return out, err
		}
	} else {
		out.EncryptionHandler = ctx.processPublicKeySecurityHandler(d)
	}

	return out, nil
}

// used only for the encrypt dict, where all objects should be direct;
// we are nonetheless tolerant with references
func (ctx *context) res(obj model.Object) model.Object {
	out, _ := ctx.resolve(obj)
	return out
}

func (ctx *context) processStandardSecurityHandler(dict *model.ObjDict) (model.EncryptionStandard, error) {
	var out model.EncryptionStandard
	r, _ := ctx.res(dict.Get("R")).(model.ObjInt)
	out.R = uint8(r)

	expectedHashLength := 32
	if out.R >= 5 {
		expectedHashLength = 48
	}

	o, _ := model.IsString(ctx.res(dict.Get("O")))
	if len(o) < expectedHashLength {
		return out, newError(EncryptionNotSupported, -1,
			"expected a %d-byte string for entry O, got %d bytes", expectedHashLength, len(o))
	}
	out.O = []byte(o)[:expectedHashLength]

	u, _ := model.IsString(ctx.res(dict.Get("U")))
	if len(u) < expectedHashLength {
		return out, newError(EncryptionNotSupported, -1,
			"expected a %d-byte string for entry U, got %d bytes", expectedHashLength, len(u))
	}
	out.U = []byte(u)[:expectedHashLength]

	if out.R >= 5 {
		oe, _ := model.IsString(ctx.res(dict.Get("OE")))
		ue, _ := model.IsString(ctx.res(dict.Get("UE")))
		if len(oe) < 32 || len(ue) < 32 {
			return out, newError(EncryptionNotSupported, -1, "missing OE or UE entry")
		}
		out.OE = []byte(oe)[:32]
		out.UE = []byte(ue)[:32]
		if perms, ok := model.IsString(ctx.res(dict.Get("Perms"))); ok && len(perms) >= 16 {
			copy(out.Perms[:], perms)
		}
	}

	if meta, ok := ctx.res(dict.Get("EncryptMetadata")).(model.ObjBool); ok {
		out.DontEncryptMetadata = !bool(meta)
	}
	return out, nil
}

func (ctx *context) processPublicKeySecurityHandler(dict *model.ObjDict) model.EncryptionPublicKey {
	rec, _ := ctx.res(dict.Get("Recipients")).(model.ObjArray)
	out := model.EncryptionPublicKey{Recipients: make([]string, len(rec))}
	for i, re := range rec {
		out.Recipients[i], _ = model.IsString(ctx.res(re))
	}
	return out
}

func (ctx *context) processCryptFilter(crypt model.Object) model.CrypFilter {
	cryptDict, _ := ctx.res(crypt).(*model.ObjDict)
	var out model.CrypFilter
	out.CFM, _ = ctx.res(cryptDict.Get("CFM")).(model.Name)
	out.AuthEvent, _ = ctx.res(cryptDict.Get("AuthEvent")).(model.Name)
	if l, ok := ctx.res(cryptDict.Get("Length")).(model.ObjInt); ok {
		out.Length = int(l)
		// some files write the crypt filter length in bits
		if out.Length >= 40 && out.Length%8 == 0 {
			out.Length /= 8
		}
	}
	recipients := ctx.res(cryptDict.Get("Recipients"))
	if rec, ok := model.IsString(recipients); ok {
		out.Recipients = []string{rec}
	} else if ar, ok := recipients.(model.ObjArray); ok {
		out.Recipients = make([]string, len(ar))
		for i, re := range ar {
			out.Recipients[i], _ = model.IsString(ctx.res(re))
		}
	}
	if enc, ok := ctx.res(cryptDict.Get("EncryptMetadata")).(model.ObjBool); ok {
		out.DontEncryptMetadata = !bool(enc)
	}
	return out
}
