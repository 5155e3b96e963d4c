package client

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// decodeBody undoes the response's Content-Encoding. Setting Accept-Encoding
// by hand turns off the transport's transparent gzip, so every advertised
// encoding is handled here.
func decodeBody(encoding string, body []byte) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return body, nil

	case "gzip", "x-gzip":
		// The session inflates gzip bodies itself.
		if !isGzip(body) {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer reader.Close()
		return readAll("gzip", reader)

	case "deflate":
		// zlib-wrapped per RFC 9110; some servers send raw deflate.
		if reader, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			defer reader.Close()
			return readAll("deflate", reader)
		}
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return readAll("deflate", reader)

	case "br":
		return readAll("br", brotli.NewReader(bytes.NewReader(body)))

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
	}
}

func isGzip(body []byte) bool {
	return len(body) >= 2 && body[0] == 0x1f && body[1] == 0x8b
}

func readAll(encoding string, r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", encoding, err)
	}
	return data, nil
}
