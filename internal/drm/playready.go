package drm

import (
	"bytes"
	"errors"
	"math/big"

	"41.neocities.org/drm/playReady"
)

var errKeyMismatch = errors.New("drm: playready key ID mismatch")

// PlayReadyChain decodes a PlayReady certificate chain, such as the file
// named by internal/config's CertificateChain field.
func PlayReadyChain(chainData []byte) (*playReady.Chain, error) {
	var chain playReady.Chain
	if err := chain.Decode(chainData); err != nil {
		return nil, err
	}
	return &chain, nil
}

// PlayReadyRequestBody builds the signed key request for keyID.
func PlayReadyRequestBody(chain *playReady.Chain, keyID, encryptSignKeyBytes []byte) ([]byte, *big.Int, error) {
	encryptSignKey := new(big.Int).SetBytes(encryptSignKeyBytes)
	playReady.UuidOrGuid(keyID)
	body, err := chain.RequestBody(keyID, encryptSignKey)
	if err != nil {
		return nil, nil, err
	}
	return body, encryptSignKey, nil
}

// PlayReadyParseLicense decrypts a PlayReady license response and checks
// the returned content key ID against keyID.
func PlayReadyParseLicense(respData []byte, encryptSignKey *big.Int, keyID []byte) (*KeyResult, error) {
	var license playReady.License
	coord, err := license.Decrypt(respData, encryptSignKey)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(license.ContentKey.KeyId[:], keyID) {
		return nil, errKeyMismatch
	}
	return &KeyResult{KeyID: keyID, Key: coord.Key()}, nil
}
