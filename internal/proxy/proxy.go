// Package proxy is a forward HTTP proxy that refuses requests to blocked
// hosts before any connection is made.
package proxy

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"phishguard/internal/blocklist"
	"phishguard/internal/metrics"
)

// Evaluator answers the block decision. *blocklist.Cache implements it.
type Evaluator interface {
	Evaluate(rawURL string) blocklist.Decision
	EvaluateHost(host string) blocklist.Decision
}

// Filter is the proxy handler.
type Filter struct {
	rules   Evaluator
	log     *logrus.Logger
	forward *httputil.ReverseProxy
	dialer  *net.Dialer
}

func NewFilter(rules Evaluator, log *logrus.Logger) *Filter {
	f := &Filter{
		rules:  rules,
		log:    log,
		dialer: &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second},
	}
	f.forward = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL = pr.In.URL
			pr.Out.Host = pr.In.Host
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			log.WithError(err).WithField("url", r.URL.String()).Warn("Upstream request failed")
			w.WriteHeader(http.StatusBadGateway)
		},
	}
	return f
}

func (f *Filter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		host, _, err := net.SplitHostPort(r.Host)
		if err != nil {
			host = r.Host
		}
		if f.veto(w, f.rules.EvaluateHost(host)) {
			return
		}
		f.tunnel(w, r)
		return
	}

	if !r.URL.IsAbs() {
		http.Error(w, "this is a proxy; send absolute-form requests", http.StatusBadRequest)
		return
	}
	if f.veto(w, f.rules.Evaluate(r.URL.String())) {
		return
	}
	f.forward.ServeHTTP(w, r)
}

func (f *Filter) veto(w http.ResponseWriter, d blocklist.Decision) bool {
	if !d.Cancel {
		return false
	}
	metrics.BlocklistVetoesTotal.Inc()
	f.log.WithField("host", d.Host).Info("Request cancelled by block list")
	http.Error(w, "blocked by PhishGuard: "+d.Host+" is a known phishing host", http.StatusForbidden)
	return true
}

func (f *Filter) tunnel(w http.ResponseWriter, r *http.Request) {
	upstream, err := f.dialer.DialContext(r.Context(), "tcp", r.Host)
	if err != nil {
		f.log.WithError(err).WithField("host", r.Host).Warn("Tunnel dial failed")
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}

	hijacker, ok := w.(http.Hijacker)
	if !ok {
		upstream.Close()
		http.Error(w, "tunneling not supported", http.StatusInternalServerError)
		return
	}
	client, buf, err := hijacker.Hijack()
	if err != nil {
		upstream.Close()
		f.log.WithError(err).Warn("Hijack failed")
		return
	}

	if _, err := client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n")); err != nil {
		client.Close()
		upstream.Close()
		return
	}

	// Bytes the client sent after the CONNECT line are already buffered.
	if n := buf.Reader.Buffered(); n > 0 {
		pending, _ := buf.Reader.Peek(n)
		if _, err := upstream.Write(pending); err != nil {
			client.Close()
			upstream.Close()
			return
		}
	}

	pipe(client, upstream)
}

// pipe copies both ways until either side closes.
func pipe(a, b net.Conn) {
	var once sync.Once
	closeBoth := func() {
		a.Close()
		b.Close()
	}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(a, b)
		once.Do(closeBoth)
	}()
	go func() {
		defer wg.Done()
		io.Copy(b, a)
		once.Do(closeBoth)
	}()
	wg.Wait()
}

// Serve runs the proxy on addr until ctx is done.
func Serve(ctx context.Context, addr string, f *Filter, log *logrus.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           f,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("Filtering proxy listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
