package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// The platform encrypts SSO session payloads with the crypto-js default
// scheme: base64("Salted__" + 8-byte salt + AES-256-CBC ciphertext) with
// key and IV derived from the shared secret via OpenSSL's EVP_BytesToKey
// (MD5, one round). Everything here fails closed: any malformed input
// returns an error, never a partial payload.

const opensslSaltHeader = "Salted__"

// DecryptSSOData decrypts an SSO payload with the app's shared SSO key and
// parses the plaintext as JSON.
func DecryptSSOData(encrypted, ssoKey string) (map[string]interface{}, error) {
	plaintext, err := decryptOpenSSL(encrypted, ssoKey)
	if err != nil {
		return nil, err
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("decrypted SSO payload is not valid JSON: %w", err)
	}
	return payload, nil
}

func decryptOpenSSL(encrypted, passphrase string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("SSO payload is not valid base64: %w", err)
	}
	if len(data) < aes.BlockSize+len(opensslSaltHeader) || string(data[:len(opensslSaltHeader)]) != opensslSaltHeader {
		return nil, fmt.Errorf("SSO payload is missing the salt header")
	}

	salt := data[len(opensslSaltHeader) : len(opensslSaltHeader)+8]
	ciphertext := data[len(opensslSaltHeader)+8:]
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("SSO ciphertext length is not a multiple of the block size")
	}

	key, iv := evpBytesToKey([]byte(passphrase), salt, 32, aes.BlockSize)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

// evpBytesToKey derives key material the way OpenSSL's EVP_BytesToKey does
// with MD5 and a single round, matching crypto-js defaults.
func evpBytesToKey(passphrase, salt []byte, keyLen, ivLen int) (key, iv []byte) {
	var derived []byte
	var prev []byte
	for len(derived) < keyLen+ivLen {
		h := md5.New()
		h.Write(prev)
		h.Write(passphrase)
		h.Write(salt)
		prev = h.Sum(nil)
		derived = append(derived, prev...)
	}
	return derived[:keyLen], derived[keyLen : keyLen+ivLen]
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > aes.BlockSize || padding > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
