package query

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one remote resource. Its Key is the de-duplication and
// cache identity.
type Request struct {
	Method  string
	BaseURL string
	Path    string
	Body    []byte
}

// Get builds a GET request.
func Get(baseURL, path string) Request {
	return Request{Method: http.MethodGet, BaseURL: baseURL, Path: path}
}

// Post builds a POST request with a JSON body.
func Post(baseURL, path string, body []byte) Request {
	return Request{Method: http.MethodPost, BaseURL: baseURL, Path: path, Body: body}
}

// URL joins base and path.
func (r Request) URL() string {
	base := strings.TrimRight(r.BaseURL, "/")
	if r.Path == "" {
		return base
	}
	if strings.HasPrefix(r.Path, "/") {
		return base + r.Path
	}
	return base + "/" + r.Path
}

// Host returns the request host, used as a metrics label.
func (r Request) Host() string {
	u, err := url.Parse(r.BaseURL)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host
}

// Key is "METHOD url" with "#sha256(body)" appended when a body is present.
func (r Request) Key() string {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	key := method + " " + r.URL()
	if len(r.Body) > 0 {
		sum := sha256.Sum256(r.Body)
		key += "#" + hex.EncodeToString(sum[:])
	}
	return key
}
