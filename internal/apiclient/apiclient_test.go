package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPsshBox_PrependsFourByteSize(t *testing.T) {
	pssh := []byte{0xde, 0xad, 0xbe, 0xef}
	box := BuildPsshBox(pssh)
	require.Len(t, box, 8)
	assert.Equal(t, []byte{0, 0, 0, 8}, box[:4])
	assert.Equal(t, pssh, box[4:])
}

func TestSubstitute_ReplacesAllTokens(t *testing.T) {
	got := substitute("https://api/{service}/{id}?pssh={pssh-box}", map[string]string{
		"service": "svc1", "id": "abc", "pssh-box": "Zm9v",
	})
	assert.Equal(t, "https://api/svc1/abc?pssh=Zm9v", got)
}

func TestResolveManifestURL_SubstitutesAndParses(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"data":"https://cdn/manifest.mpd","expiry":1700000000}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/mpd/{service}/{id}", srv.URL+"/key/{service}/{id}?pssh={pssh-box}")
	res, err := c.ResolveManifestURL(context.Background(), "svc1", "stream42")
	require.NoError(t, err)
	assert.Equal(t, "/mpd/svc1/stream42", gotPath)
	assert.Equal(t, "https://cdn/manifest.mpd", res.Data)
	assert.Equal(t, int64(1700000000), res.Expiry)
}

func TestFetchKey_DecodesHexKeys(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"keys":{"00000000000000000000000000000001":"11111111111111111111111111111111"}}`))
	}))
	defer srv.Close()

	c := New("", srv.URL+"/key/{service}/{id}?pssh={pssh-box}")
	key, err := c.FetchKey(context.Background(), "svc1", "stream42", []byte{1, 2, 3})
	require.NoError(t, err)
	require.NotNil(t, key)
	assert.Len(t, key.KeyID, 16)
	assert.Len(t, key.Key, 16)
}

func TestFetchKey_StatusFalseReturnsNilWithoutError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":false,"keys":{}}`))
	}))
	defer srv.Close()

	c := New("", srv.URL+"/key")
	key, err := c.FetchKey(context.Background(), "svc1", "stream42", nil)
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestGet_HTTPErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, srv.URL)
	_, err := c.ResolveManifestURL(context.Background(), "svc1", "id1")
	assert.Error(t, err)
}
