package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// aeadSuites are the TLS 1.2 suites offered; TLS 1.3 suites are fixed by Go.
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// ClientTLSConfig returns the TLS settings shared by every outbound
// connection: provider APIs, media downloads and Redis.
func ClientTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: append([]uint16(nil), aeadSuites...),
	}
}

// ServerTLSConfig is used when the API port serves HTTPS. Certificates
// are added by the caller.
func ServerTLSConfig() *tls.Config {
	cfg := ClientTLSConfig()
	cfg.NextProtos = []string{"h2", "http/1.1"}
	return cfg
}

func transport() *http.Transport {
	return &http.Transport{
		TLSClientConfig: ClientTLSConfig(),
		Proxy:           http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// APIClient is used for provider submit, poll and generate calls. The
// timeout bounds each whole request.
func APIClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: transport()}
}

// DownloadClient fetches generated media. Only the wait for response
// headers is bounded; callers bound the body with a context. Media is
// already compressed, so transparent gzip is off.
func DownloadClient(headerTimeout time.Duration) *http.Client {
	tr := transport()
	tr.ResponseHeaderTimeout = headerTimeout
	tr.DisableCompression = true
	tr.MaxIdleConnsPerHost = 4
	return &http.Client{Transport: tr}
}
