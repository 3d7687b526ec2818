// Package proxy implements the tenant-facing reverse proxy: a single
// HTTP listener that resolves the request's Host header against the
// router.Table and forwards to whichever backend is currently swapped in.
//
// No reverse-proxy library appears anywhere in the retrieval pack — the
// host panel's own "reverse proxy" (internal/caddy) drives an external
// Caddy process over os/exec and a generated Caddyfile, which cannot
// satisfy an in-process TCP/HTTP listener. net/http/httputil.ReverseProxy
// is the standard-library building block idiomatic Go services reach for
// here; see DESIGN.md for why no third-party alternative was available to
// wire instead.
package proxy

import (
	"log"
	"net/http"
	"net/http/httputil"
	"strings"
)

// Lookup resolves a virtual host to a forwarding target ("127.0.0.1:port"),
// satisfied by *router.Table in production.
type Lookup interface {
	Lookup(host string) (string, bool)
}

// Proxy is an http.Handler that forwards by Host header.
type Proxy struct {
	lookup    Lookup
	rp        *httputil.ReverseProxy
	bindAddr  string
	srv       *http.Server
}

// New creates a Proxy that resolves hosts through lookup.
func New(lookup Lookup, bindAddr string) *Proxy {
	p := &Proxy{lookup: lookup, bindAddr: bindAddr}

	p.rp = &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			target, ok := lookup.Lookup(hostOnly(req.Host))
			if !ok {
				// ErrorHandler below fires instead: leave the request
				// unroutable so RoundTrip fails fast.
				req.URL.Scheme = ""
				req.URL.Host = ""
				return
			}
			req.URL.Scheme = "http"
			req.URL.Host = target
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("no route for host\n"))
		},
	}

	return p
}

// ServeHTTP implements http.Handler. A request whose host has no route is
// short-circuited before it ever reaches the ReverseProxy's RoundTripper,
// since an empty req.URL.Host would otherwise produce a confusing transport
// error instead of a clean 404.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, ok := p.lookup.Lookup(hostOnly(r.Host)); !ok {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte("no route for host\n"))
		return
	}
	p.rp.ServeHTTP(w, r)
}

// ListenAndServe starts the proxy's HTTP server. It blocks until the server
// stops (normally via Shutdown) and returns http.ErrServerClosed on a clean
// stop, matching net/http.Server's own contract.
func (p *Proxy) ListenAndServe() error {
	p.srv = &http.Server{
		Addr:    p.bindAddr,
		Handler: p,
	}
	log.Printf("proxy listening on %s", p.bindAddr)
	return p.srv.ListenAndServe()
}

// Shutdown closes the proxy's listener and any active connections
// immediately; in-flight requests are not drained.
func (p *Proxy) Shutdown() error {
	if p.srv == nil {
		return nil
	}
	return p.srv.Close()
}

func hostOnly(hostHeader string) string {
	host := hostHeader
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		// Guard against bare IPv6 addresses, which this service never
		// routes on (virtual hostnames are always "{project}.{suffix}").
		if !strings.Contains(host[idx:], "]") {
			host = host[:idx]
		}
	}
	return strings.ToLower(host)
}
