// Package apiclient talks to the two operator-supplied HTTP APIs: the
// manifest-URL resolver and the decryption-key service.
// Generalized from a one-shot GET into a small typed client with context
// cancellation.
package apiclient

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"41.neocities.org/dashhls/internal/dasherr"
)

type Client struct {
	HTTP         *http.Client
	ManifestURL  string // template with {service}, {id}
	KeyURL       string // template with {service}, {id}, {pssh-box}
}

func New(manifestURLTemplate, keyURLTemplate string) *Client {
	return &Client{
		HTTP:        &http.Client{Timeout: 15 * time.Second},
		ManifestURL: manifestURLTemplate,
		KeyURL:      keyURLTemplate,
	}
}

// ManifestResolution is the manifest-URL API's response shape.
type ManifestResolution struct {
	Data   string `json:"data"`
	Expiry int64  `json:"expiry"`
}

// ResolveManifestURL substitutes {service}/{id} and GETs the resolver.
func (c *Client) ResolveManifestURL(ctx context.Context, service, id string) (*ManifestResolution, error) {
	url := substitute(c.ManifestURL, map[string]string{"service": service, "id": id})
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var out ManifestResolution
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, dasherr.New(dasherr.Critical, dasherr.Network, dasherr.OperationAborted, err)
	}
	return &out, nil
}

// keyAPIResponse is the decryption-key API's response shape.
type keyAPIResponse struct {
	Status bool              `json:"status"`
	Keys   map[string]string `json:"keys"`
}

// ResolvedKey is one hex keyId/key pair returned by the key API.
type ResolvedKey struct {
	KeyID []byte
	Key   []byte
}

// FetchKey substitutes {service}/{id}/{pssh-box} (base64 of a
// 4-byte-size-prefixed PSSH box) and resolves the content key. A missing
// keyId, or status=false, is logged by the caller and treated as a fatal
// cycle error.
func (c *Client) FetchKey(ctx context.Context, service, id string, psshBox []byte) (*ResolvedKey, error) {
	encoded := base64.StdEncoding.EncodeToString(psshBox)
	url := substitute(c.KeyURL, map[string]string{"service": service, "id": id, "pssh-box": encoded})
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	var resp keyAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, dasherr.New(dasherr.Critical, dasherr.Network, dasherr.OperationAborted, err)
	}
	if !resp.Status || len(resp.Keys) == 0 {
		return nil, nil
	}
	for hexID, hexKey := range resp.Keys {
		keyID, err := hex.DecodeString(hexID)
		if err != nil {
			continue
		}
		key, err := hex.DecodeString(hexKey)
		if err != nil {
			continue
		}
		return &ResolvedKey{KeyID: keyID, Key: key}, nil
	}
	return nil, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, dasherr.New(dasherr.Critical, dasherr.Network, dasherr.OperationAborted, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, dasherr.New(dasherr.Critical, dasherr.Network, dasherr.OperationAborted, err)
	}
	if resp.StatusCode >= 400 {
		return nil, dasherr.New(dasherr.Critical, dasherr.Network, dasherr.OperationAborted, fmt.Errorf("apiclient: %s returned %d", url, resp.StatusCode))
	}
	return body, nil
}

func substitute(tmpl string, vals map[string]string) string {
	out := tmpl
	for k, v := range vals {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// BuildPsshBox wraps a raw PSSH payload (as stored in model.DrmInfo) with
// its 4-byte big-endian size prefix, for the key API's {pssh-box} parameter.
func BuildPsshBox(pssh []byte) []byte {
	size := len(pssh) + 4
	out := make([]byte, 4, size)
	out[0] = byte(size >> 24)
	out[1] = byte(size >> 16)
	out[2] = byte(size >> 8)
	out[3] = byte(size)
	return append(out, pssh...)
}
