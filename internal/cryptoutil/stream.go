package cryptoutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/minio/sio"
	"golang.org/x/crypto/hkdf"
)

const (
	envelopeMagic = "TZW1"
	envelopeVer   = uint16(2)
	nonceSize     = 12

	snapshotInfo = "tzw snapshot v1 "
)

// ObjectKey derives the stream key for one stored object from the master key,
// so no two snapshots are encrypted under the same key and a ciphertext moved
// to another object name no longer decrypts.
func ObjectKey(master []byte, name string) ([]byte, error) {
	if len(master) != 32 {
		return nil, fmt.Errorf("invalid key length: %d (expected 32 bytes)", len(master))
	}
	derived := make([]byte, 32)
	r := hkdf.New(sha256.New, master, nil, []byte(snapshotInfo+name))
	if _, err := io.ReadFull(r, derived); err != nil {
		return nil, err
	}
	return derived, nil
}

// EncryptWriter returns a DARE (sio) writer encrypting the object stored as name.
func EncryptWriter(w io.Writer, master []byte, name string) (io.WriteCloser, error) {
	key, err := ObjectKey(master, name)
	if err != nil {
		return nil, err
	}
	return sio.EncryptWriter(w, sio.Config{Key: key})
}

// DecryptReader returns a DARE (sio) reader for the object stored as name.
func DecryptReader(r io.Reader, master []byte, name string) (io.Reader, error) {
	key, err := ObjectKey(master, name)
	if err != nil {
		return nil, err
	}
	return sio.DecryptReader(r, sio.Config{Key: key})
}

// SealConfig encrypts a config file. The header records the file format
// (yaml, toml, json) and is authenticated along with the payload.
//
// Layout: magic(4) | version(2) | format length(1) | format | nonce(12) | ciphertext.
func SealConfig(plain, key []byte, format string) ([]byte, error) {
	if len(format) == 0 || len(format) > 255 {
		return nil, fmt.Errorf("invalid config format %q", format)
	}
	buf := &bytes.Buffer{}
	buf.WriteString(envelopeMagic)
	if err := binary.Write(buf, binary.BigEndian, envelopeVer); err != nil {
		return nil, err
	}
	buf.WriteByte(byte(len(format)))
	buf.WriteString(format)
	header := bytes.Clone(buf.Bytes())

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	buf.Write(nonce)

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	buf.Write(aead.Seal(nil, nonce, plain, header))
	return buf.Bytes(), nil
}

// OpenConfig reverses SealConfig and reports the recorded format.
func OpenConfig(sealed, key []byte) ([]byte, string, error) {
	if len(sealed) < 4+2+1 {
		return nil, "", errors.New("config cipher too short")
	}
	if string(sealed[:4]) != envelopeMagic {
		return nil, "", errors.New("invalid config header")
	}
	if ver := binary.BigEndian.Uint16(sealed[4:6]); ver != envelopeVer {
		return nil, "", fmt.Errorf("unsupported config version %d", ver)
	}
	headerLen := 7 + int(sealed[6])
	if len(sealed) < headerLen+nonceSize {
		return nil, "", errors.New("config cipher too short")
	}
	header := sealed[:headerLen]
	format := string(sealed[7:headerLen])
	nonce := sealed[headerLen : headerLen+nonceSize]

	aead, err := newGCM(key)
	if err != nil {
		return nil, "", err
	}
	plain, err := aead.Open(nil, nonce, sealed[headerLen+nonceSize:], header)
	if err != nil {
		return nil, "", fmt.Errorf("open config: %w", err)
	}
	return plain, format, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
