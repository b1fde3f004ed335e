package server

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/mediaflow/config"
)

func newTestManager(t *testing.T, handler http.Handler) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	return NewManager("api", handler, cfg, zap.NewNop())
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
}

func TestConfigFor(t *testing.T) {
	cfg := ConfigFor(9091, config.ServerConfig{WriteTimeout: 5 * time.Minute, ShutdownTimeout: 10 * time.Second})
	assert.Equal(t, ":9091", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout, "zero keeps default")
	assert.Equal(t, 5*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestManager_StartAndShutdown(t *testing.T) {
	m := newTestManager(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	resp, err := http.Get("http://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
}

func TestManager_DoubleStart(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	err := m.Start()
	assert.ErrorContains(t, err, "already started")
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	require.NoError(t, m.Start())

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_StartAfterShutdown(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))

	assert.ErrorContains(t, m.Start(), "closed")
}

func TestManager_ListenError(t *testing.T) {
	first := newTestManager(t, http.NewServeMux())
	require.NoError(t, first.Start())
	t.Cleanup(func() { _ = first.Shutdown(context.Background()) })

	cfg := DefaultConfig()
	cfg.Addr = first.Addr()
	second := NewManager("api", http.NewServeMux(), cfg, zap.NewNop())
	assert.Error(t, second.Start())
}

func TestManager_RegisterOnShutdown(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	var called atomic.Bool
	m.RegisterOnShutdown(func() { called.Store(true) })

	require.NoError(t, m.Start())
	require.NoError(t, m.Shutdown(context.Background()))
	assert.Eventually(t, called.Load, time.Second, 5*time.Millisecond)
}

func TestManager_Errors(t *testing.T) {
	m := newTestManager(t, http.NewServeMux())
	select {
	case <-m.Errors():
		t.Fatal("should not have received an error")
	default:
	}
}

func TestManager_Addr(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = ":9999"
	m := NewManager("metrics", http.NewServeMux(), cfg, zap.NewNop())
	assert.Equal(t, ":9999", m.Addr())
}

// writeSelfSigned writes a localhost certificate and key as PEM files.
func writeSelfSigned(t *testing.T) (certFile, keyFile string, pool *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "mediaflow-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile = filepath.Join(dir, "tls.crt")
	keyFile = filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	pool = x509.NewCertPool()
	pool.AddCert(cert)
	return certFile, keyFile, pool
}

func TestManager_ServesTLS(t *testing.T) {
	certFile, keyFile, pool := writeSelfSigned(t)
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.CertFile, cfg.KeyFile = certFile, keyFile
	m := NewManager("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Proto))
	}), cfg, zap.NewNop())

	require.NoError(t, m.Start())
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig:   &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2: true,
	}}
	resp, err := client.Get("https://" + m.Addr() + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, resp.TLS)
}

func TestManager_BadKeyPair(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	cfg.CertFile, cfg.KeyFile = "/nonexistent/tls.crt", "/nonexistent/tls.key"
	m := NewManager("api", http.NotFoundHandler(), cfg, zap.NewNop())

	err := m.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load TLS key pair")
}

func TestAPIConfigFor(t *testing.T) {
	cfg := APIConfigFor(config.ServerConfig{Host: "127.0.0.1", HTTPPort: 8443, TLSCertFile: "c.pem", TLSKeyFile: "k.pem"})
	assert.Equal(t, "127.0.0.1:8443", cfg.Addr)
	assert.True(t, cfg.TLSEnabled())

	assert.False(t, ConfigFor(9091, config.ServerConfig{TLSCertFile: "c.pem", TLSKeyFile: "k.pem"}).TLSEnabled(),
		"metrics port stays plain")
}
