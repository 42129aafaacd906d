// Package drm holds Widevine and PlayReady license-exchange helpers. No
// other package in this module imports it: the DRM scheme table lives in
// internal/mpd, and the saver's manifest-expiry key refresh goes through
// internal/apiclient's key API.
package drm

import (
	"bytes"
	"errors"

	"41.neocities.org/drm/widevine"
)

// KeyResult is one resolved content key.
type KeyResult struct {
	KeyID []byte
	Key   []byte
}

var ErrZeroKey = errors.New("drm: zero key received")

// BuildLicenseRequest constructs the signed Widevine license request for
// keyID/contentID, using the client identification and private key loaded
// by the caller (internal/config resolves their paths).
func BuildLicenseRequest(clientID, privateKeyPEM []byte, keyID, contentID []byte) ([]byte, *widevine.PrivateKey, []byte, error) {
	var pssh widevine.PsshData
	pssh.ContentId = contentID
	pssh.KeyIds = [][]byte{keyID}
	reqBytes, err := pssh.BuildLicenseRequest(clientID)
	if err != nil {
		return nil, nil, nil, err
	}
	privateKey, err := widevine.ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, nil, nil, err
	}
	signed, err := widevine.BuildSignedMessage(reqBytes, privateKey)
	if err != nil {
		return nil, nil, nil, err
	}
	return signed, privateKey, reqBytes, nil
}

// ParseLicenseResponse extracts the content key matching keyID from a
// Widevine license server response.
func ParseLicenseResponse(respBytes, reqBytes []byte, privateKey *widevine.PrivateKey, keyID []byte) (*KeyResult, error) {
	keys, err := widevine.ParseLicenseResponse(respBytes, reqBytes, privateKey)
	if err != nil {
		return nil, err
	}
	foundKey, ok := widevine.GetKey(keys, keyID)
	if !ok {
		return nil, errors.New("drm: key not found in response")
	}
	var zero [16]byte
	if bytes.Equal(foundKey, zero[:]) {
		return nil, ErrZeroKey
	}
	return &KeyResult{KeyID: keyID, Key: foundKey}, nil
}

// ContentIDFromPSSH extracts the Widevine content ID embedded in a PSSH
// payload, used when the manifest only carries the PSSH and not an
// explicit content ID.
func ContentIDFromPSSH(psshData []byte) ([]byte, error) {
	var wv widevine.PsshData
	if err := wv.Unmarshal(psshData); err != nil {
		return nil, err
	}
	return wv.ContentId, nil
}
