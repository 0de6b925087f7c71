package media

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_DataURI_PNG(t *testing.T) {
	raw := []byte{0x89, 0x50, 0x4e, 0x47}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	r := New()
	img, err := r.Resolve(context.Background(), uri)
	require.NoError(t, err)
	assert.Equal(t, "png", img.Format)
	assert.Equal(t, raw, img.Bytes)
}

func TestResolve_DataURI_UnsupportedMime(t *testing.T) {
	uri := "data:image/tiff;base64," + base64.StdEncoding.EncodeToString([]byte("x"))
	r := New()
	_, err := r.Resolve(context.Background(), uri)
	assert.Error(t, err)
}

func TestResolve_DataURI_BadBase64(t *testing.T) {
	r := New()
	_, err := r.Resolve(context.Background(), "data:image/png;base64,not-base64!!")
	assert.Error(t, err)
}

func TestResolve_UnsupportedScheme(t *testing.T) {
	r := New()
	_, err := r.Resolve(context.Background(), "ftp://example.com/image.png")
	assert.Error(t, err)
}

func TestResolve_RemoteFetch_OK(t *testing.T) {
	body := []byte{0xff, 0xd8, 0xff}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(body)
	}))
	defer srv.Close()

	r := New()
	img, err := r.Resolve(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", img.Format)
	assert.Equal(t, body, img.Bytes)
}

func TestResolve_RemoteFetch_ExceedsBound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		io.CopyN(w, alwaysZero{}, MaxFetchBytes+10)
	}))
	defer srv.Close()

	r := New()
	_, err := r.Resolve(context.Background(), srv.URL)
	assert.Error(t, err)
}

func TestResolve_RemoteFetch_UnsupportedContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	r := New()
	_, err := r.Resolve(context.Background(), srv.URL)
	assert.Error(t, err)
}

type alwaysZero struct{}

func (alwaysZero) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}
