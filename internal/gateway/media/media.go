// Package media resolves an OpenAI image_url part into raw bytes plus
// a format tag, either by decoding a data URI in place or fetching a
// remote URL under a strict size and time bound.
package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/openaicompat/bedrock-gateway/internal/gwerrors"
)

// MaxFetchBytes bounds a remote image fetch; FetchTimeout bounds its
// duration. Both per spec: 10 MiB, 10 s.
const (
	MaxFetchBytes = 10 * 1024 * 1024
	FetchTimeout  = 10 * time.Second
)

var dataURIPattern = regexp.MustCompile(`^data:([a-zA-Z0-9.+-]+/[a-zA-Z0-9.+-]+);base64,(.+)$`)

var allowedMIME = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/gif":  "gif",
	"image/webp": "webp",
}

// Image is a decoded inline image ready to become an upstream image
// content block.
type Image struct {
	Format string
	Bytes  []byte
}

// Resolver fetches remote image URLs; swap in a test double to avoid
// real network calls.
type Resolver struct {
	Client *http.Client
}

func New() *Resolver {
	return &Resolver{Client: &http.Client{}}
}

// Resolve decodes a data URI in place, or fetches an http(s) URL under
// the bound. Any other scheme fails invalid_request_error.
func (r *Resolver) Resolve(ctx context.Context, url string) (Image, error) {
	if m := dataURIPattern.FindStringSubmatch(url); m != nil {
		return decodeDataURI(m[1], m[2])
	}
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		return r.fetchRemote(ctx, url)
	}
	return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
		"image_url must be a data: URI or an http(s) URL", "messages.content.image_url")
}

func decodeDataURI(mime, payload string) (Image, error) {
	format, ok := allowedMIME[strings.ToLower(mime)]
	if !ok {
		return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
			fmt.Sprintf("unsupported image mime type %q", mime), "messages.content.image_url")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
			"image_url data URI is not valid base64", "messages.content.image_url")
	}
	return Image{Format: format, Bytes: raw}, nil
}

func (r *Resolver) fetchRemote(ctx context.Context, url string) (Image, error) {
	ctx, cancel := context.WithTimeout(ctx, FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest, "invalid image_url", "messages.content.image_url")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
			fmt.Sprintf("failed to fetch image_url: %v", err), "messages.content.image_url")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
			fmt.Sprintf("image_url returned status %d", resp.StatusCode), "messages.content.image_url")
	}

	contentType := strings.ToLower(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0])
	format, ok := allowedMIME[contentType]
	if !ok {
		return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
			fmt.Sprintf("unsupported image content-type %q", contentType), "messages.content.image_url")
	}

	limited := io.LimitReader(resp.Body, MaxFetchBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
			"failed to read image_url response body", "messages.content.image_url")
	}
	if len(data) > MaxFetchBytes {
		return Image{}, gwerrors.WithParam(gwerrors.KindInvalidRequest,
			"image_url response exceeds the 10 MiB fetch bound", "messages.content.image_url")
	}

	return Image{Format: format, Bytes: data}, nil
}
