package helpers

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
)

// CertDownloadMethod is the gateway method that returns a certificate.
const CertDownloadMethod = "alipay.open.app.alipaycert.download"

// Request is a call observed by the fake gateway.
type Request struct {
	Method string
	Query  url.Values
	Form   url.Values
	Header http.Header
}

// Reply describes how the fake gateway answers a call.
type Reply struct {
	// Result is the raw JSON object placed under {method}_response.
	Result string
	// CertSN is reported as alipay_cert_sn when non-empty.
	CertSN string
	// Sign overrides the computed signature when non-empty.
	Sign string
	// SignKey signs Result with SHA256withRSA when Sign is empty.
	SignKey *rsa.PrivateKey
	// Status is the HTTP status code; zero means 200.
	Status int
	// Delay holds the reply back, honoring client cancellation.
	Delay time.Duration
	// Raw replaces the whole body when non-nil.
	Raw []byte
}

// Handler produces a reply for a request.
type Handler func(r Request) Reply

// Gateway is a fake payment gateway served by httptest.
type Gateway struct {
	Server *httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	requests []Request
}

// NewGateway starts a fake gateway that is closed with the test.
func NewGateway(t testing.TB) *Gateway {
	t.Helper()

	g := &Gateway{handlers: make(map[string]Handler)}
	g.Server = httptest.NewServer(http.HandlerFunc(g.serveHTTP))
	t.Cleanup(g.Server.Close)
	return g
}

// URL returns the gateway endpoint.
func (g *Gateway) URL() string {
	return g.Server.URL + "/gateway.do"
}

// Handle registers the handler for a gateway method.
func (g *Gateway) Handle(method string, h Handler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[method] = h
}

// Requests returns a copy of the calls received so far.
func (g *Gateway) Requests() []Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Request(nil), g.requests...)
}

// Count returns the number of calls received for method.
func (g *Gateway) Count(method string) int {
	n := 0
	for _, r := range g.Requests() {
		if r.Method == method {
			n++
		}
	}
	return n
}

func (g *Gateway) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := Request{
		Method: r.URL.Query().Get("method"),
		Query:  r.URL.Query(),
		Form:   r.PostForm,
		Header: r.Header.Clone(),
	}

	g.mu.Lock()
	g.requests = append(g.requests, req)
	h, ok := g.handlers[req.Method]
	g.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	reply := h(req)
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if reply.Status != 0 && reply.Status != http.StatusOK {
		w.WriteHeader(reply.Status)
		return
	}

	w.Header().Set("Content-Type", "application/json;charset=utf-8")
	if reply.Raw != nil {
		_, _ = w.Write(reply.Raw)
		return
	}
	_, _ = w.Write(Envelope(req.Method, reply))
}

// ResponseKey returns the envelope key of the result for method.
func ResponseKey(method string) string {
	return strings.ReplaceAll(method, ".", "_") + "_response"
}

// Envelope renders a gateway response body.
func Envelope(method string, reply Reply) []byte {
	sig := reply.Sign
	if sig == "" && reply.SignKey != nil {
		sig = SignSHA256(reply.SignKey, []byte(reply.Result))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "{%q:%s", ResponseKey(method), reply.Result)
	if reply.CertSN != "" {
		fmt.Fprintf(&b, ",%q:%q", "alipay_cert_sn", reply.CertSN)
	}
	if sig != "" {
		fmt.Fprintf(&b, ",%q:%q", "sign", sig)
	}
	b.WriteString("}")
	return []byte(b.String())
}

// SignSHA256 signs content with SHA256withRSA and returns base64.
func SignSHA256(key *rsa.PrivateKey, content []byte) string {
	sum := sha256.Sum256(content)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, sum[:])
	if err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(sig)
}

// SuccessResult returns a success result object with extra fields
// appended in the given order.
func SuccessResult(fields ...string) string {
	parts := []string{`"code":"10000"`, `"msg":"Success"`}
	for i := 0; i+1 < len(fields); i += 2 {
		v, _ := json.Marshal(fields[i+1])
		parts = append(parts, fmt.Sprintf("%q:%s", fields[i], v))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// CertDownloadReply answers the certificate download method with certPEM.
// The reply signature is deliberately malformed: the download response
// is never verified.
func CertDownloadReply(certPEM []byte) Reply {
	return Reply{
		Result: SuccessResult("alipay_cert_content", base64.StdEncoding.EncodeToString(certPEM)),
		Sign:   "not base64 !!!",
	}
}
