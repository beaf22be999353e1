package server

import (
	"crypto/tls"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

type SSLConfig struct {
	Enabled     bool
	Certificate string
	PrivateKey  string
	AutoTLS     bool
	Domains     []string
	CertCache   string
}

func NewSSLConfig() *SSLConfig {
	return &SSLConfig{
		Enabled: false,
	}
}

// Configure manual SSL
func (c *SSLConfig) WithCertificate(certFile, keyFile string) *SSLConfig {
	c.Enabled = true
	c.AutoTLS = false
	c.Certificate = certFile
	c.PrivateKey = keyFile
	return c
}

// Configure Auto SSL with Let's Encrypt
func (c *SSLConfig) WithAutoTLS(domains []string, cacheDir string) *SSLConfig {
	c.Enabled = true
	c.AutoTLS = true
	c.Domains = domains
	c.CertCache = cacheDir
	return c
}

func (c *SSLConfig) certManager() (*autocert.Manager, error) {
	if len(c.Domains) == 0 {
		return nil, errors.New("no domains specified for AutoTLS")
	}

	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(c.Domains...),
	}

	if c.CertCache != "" {
		m.Cache = autocert.DirCache(c.CertCache)
	}
	return m, nil
}

// serveAutoTLS starts the server with automatic SSL certificate management
func (r *Router) serveAutoTLS(server *http.Server, config *SSLConfig) error {
	certManager, err := config.certManager()
	if err != nil {
		return err
	}

	server.TLSConfig = &tls.Config{
		GetCertificate: certManager.GetCertificate,
		MinVersion:     tls.VersionTLS12,
	}

	// HTTP-01 challenge handler
	go func() {
		r.log.Info("starting HTTP-01 challenge handler on :80")
		if err := http.ListenAndServe(":80", certManager.HTTPHandler(nil)); err != nil {
			r.log.Error("HTTP-01 challenge handler failed", zap.Error(err))
		}
	}()

	r.log.Info("starting HTTPS server", zap.String("addr", server.Addr), zap.Strings("domains", config.Domains))
	return server.ListenAndServeTLS("", "")
}

func (r *Router) serveManualTLS(server *http.Server, config *SSLConfig) error {
	if config.Certificate == "" || config.PrivateKey == "" {
		return errors.New("certificate and private key files are required for manual TLS")
	}

	server.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	r.log.Info("starting HTTPS server", zap.String("addr", server.Addr))
	return server.ListenAndServeTLS(config.Certificate, config.PrivateKey)
}
