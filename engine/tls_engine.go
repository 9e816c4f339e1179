package engine

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	tls "github.com/refraction-networking/utls"
)

const fingerprintedMaxTimeout = 15 * time.Second

// chromeH1Spec is a Chrome-like TLS ClientHello with ALPN forced to http/1.1
// only. Computed once at init time and reused for every connection.
var (
	chromeH1Spec  tls.ClientHelloSpec
	chromeSpecOK  bool
	chromeSpecErr error
)

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		chromeSpecErr = err
		return
	}
	// Go's http.Transport cannot speak h2 over a utls connection.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
	chromeSpecOK = true
}

// FingerprintedClientEngine fetches over a connection whose TLS handshake
// looks like Chrome's.
type FingerprintedClientEngine struct {
	*netEngine
}

// NewFingerprintedClientEngine creates the engine. minContent <= 0 selects
// DefaultMinContentLength.
func NewFingerprintedClientEngine(minContent int) *FingerprintedClientEngine {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialTLSContext:        dialChromeTLS,
		ForceAttemptHTTP2:     false,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: fingerprintedMaxTimeout,
	}
	return &FingerprintedClientEngine{newNetEngine(NameFingerprintedClient, transport, fingerprintedMaxTimeout, minContent)}
}

// Available is false when the Chrome ClientHello could not be built.
func (e *FingerprintedClientEngine) Available() bool { return chromeSpecOK }

func dialChromeTLS(ctx context.Context, network, addr string) (net.Conn, error) {
	if !chromeSpecOK {
		return nil, fmt.Errorf("fingerprinted-client: chrome hello unavailable: %w", chromeSpecErr)
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)

	tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
	if err := tlsConn.ApplyPreset(&chromeH1Spec); err != nil {
		conn.Close()
		return nil, fmt.Errorf("fingerprinted-client: apply tls spec: %w", err)
	}
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}
