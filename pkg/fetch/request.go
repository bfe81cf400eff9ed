package fetch

import (
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout is the inactivity timeout applied when Request.Timeout is zero.
const DefaultTimeout = 120 * time.Second

// BodyEncoding selects how an accumulated response body is represented.
type BodyEncoding string

const (
	// EncodingText decodes the body as UTF-8 into Response.Text.
	EncodingText BodyEncoding = "utf8"

	// EncodingBinary keeps the body as raw bytes only.
	EncodingBinary BodyEncoding = "binary"
)

// Request describes one logical call. At most one of Form, JSON and Stream may
// be set, and they are only sent for POST and PATCH.
type Request struct {
	URL    string
	Method string
	Header http.Header

	Form   url.Values
	JSON   any
	Stream io.Reader

	// Timeout is the inactivity window; zero means DefaultTimeout.
	Timeout  time.Duration
	Encoding BodyEncoding
	Jar      CookieJar
}

// Response is a fully received response. Body always holds the decoded bytes;
// Text is filled only for EncodingText.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Text       string
	URL        string
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r *Request) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultTimeout
	}
	return r.Timeout
}

func (r *Request) encoding() BodyEncoding {
	if r.Encoding == "" {
		return EncodingText
	}
	return r.Encoding
}

// allowsBody reports whether the method carries a body variant.
func (r *Request) allowsBody() bool {
	m := r.method()
	return m == http.MethodPost || m == http.MethodPatch
}

func (r *Request) bodyVariants() int {
	n := 0
	if r.Form != nil {
		n++
	}
	if r.JSON != nil {
		n++
	}
	if r.Stream != nil {
		n++
	}
	return n
}

// Option configures a Request built by Client.Get and Client.Post.
type Option func(*Request)

// WithHeader adds a request header.
func WithHeader(key, value string) Option {
	return func(r *Request) {
		if r.Header == nil {
			r.Header = make(http.Header)
		}
		r.Header.Add(key, value)
	}
}

// WithHeaders merges a header map into the request.
func WithHeaders(h map[string]string) Option {
	return func(r *Request) {
		for k, v := range h {
			WithHeader(k, v)(r)
		}
	}
}

// WithMethod overrides the request method.
func WithMethod(method string) Option {
	return func(r *Request) { r.Method = method }
}

// WithForm sets url-encoded form fields as the body.
func WithForm(form url.Values) Option {
	return func(r *Request) { r.Form = form }
}

// WithJSON sets a JSON-serializable value as the body.
func WithJSON(v any) Option {
	return func(r *Request) { r.JSON = v }
}

// WithStream pipes src into the request body until it returns io.EOF.
func WithStream(src io.Reader) Option {
	return func(r *Request) { r.Stream = src }
}

// WithTimeout sets the inactivity timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Request) { r.Timeout = d }
}

// WithEncoding selects the response body representation.
func WithEncoding(enc BodyEncoding) Option {
	return func(r *Request) { r.Encoding = enc }
}

// WithJar attaches a cookie jar.
func WithJar(jar CookieJar) Option {
	return func(r *Request) { r.Jar = jar }
}

// NewRequest builds a Request for rawURL with the given options applied.
func NewRequest(rawURL string, opts ...Option) *Request {
	req := &Request{URL: rawURL}
	for _, opt := range opts {
		opt(req)
	}
	return req
}
