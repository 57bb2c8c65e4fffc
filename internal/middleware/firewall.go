package middleware

import (
	"bytes"
	"io"
	"net/http"

	"github.com/lp24213/agroisync-sub001/internal/firewall"
)

// maxInspectedBody caps how much of the request body the firewall sees.
// The body is restored for the handler either way.
const maxInspectedBody = 64 * 1024

// inspectedHeaders are the only headers handed to the firewall. Cookies
// and authorization tokens stay out of the pattern-matched surface.
var inspectedHeaders = []string{
	"Content-Type",
	"Referer",
	"Origin",
	"X-Forwarded-For",
}

// FirewallGate runs every request through the firewall before anything
// else touches it. Blocked sources get 403, rate-limited ones 429.
type FirewallGate struct {
	firewall *firewall.Firewall
}

func NewFirewallGate(fw *firewall.Firewall) *FirewallGate {
	return &FirewallGate{firewall: fw}
}

func (g *FirewallGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verdict := g.firewall.CheckRequest(getIPAddress(r), buildRequest(r))
		if !verdict.Allowed {
			status := http.StatusForbidden
			if verdict.Action == firewall.ActionRateLimit {
				status = http.StatusTooManyRequests
			}
			writeError(w, status, verdict.Reason)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// buildRequest maps the transport request onto the firewall's view. The
// body is read up to maxInspectedBody and put back so handlers still see
// the full stream.
func buildRequest(r *http.Request) firewall.Request {
	req := firewall.Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.RawQuery,
		UserAgent: r.UserAgent(),
		Headers:   make(map[string]string, len(inspectedHeaders)),
	}

	for _, name := range inspectedHeaders {
		if v := r.Header.Get(name); v != "" {
			req.Headers[name] = v
		}
	}

	if r.Body != nil && r.Body != http.NoBody {
		peeked, err := io.ReadAll(io.LimitReader(r.Body, maxInspectedBody))
		if err == nil {
			req.Body = string(peeked)
			r.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(peeked), r.Body), r.Body}
		}
	}

	return req
}
