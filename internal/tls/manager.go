package tls

import (
	"crypto/tls"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"mfa-service/internal/util"
)

// Options controls how the server obtains its certificate: ACME via
// autocert, certificate files, or a generated dev certificate.
type Options struct {
	Enabled     bool
	AutoCert    bool
	Domain      string
	CertFile    string
	KeyFile     string
	AutoCertDir string
	Email       string
}

// Manager resolves server certificates at handshake time.
type Manager struct {
	opts     Options
	autoCert *autocert.Manager
}

func NewManager(opts Options) *Manager {
	m := &Manager{opts: opts}
	if opts.Enabled && opts.AutoCert {
		m.setupAutoCert()
	}
	return m
}

func (m *Manager) setupAutoCert() {
	if err := os.MkdirAll(m.opts.AutoCertDir, 0o700); err != nil {
		util.Warn("could not create autocert cache directory", zap.Error(err))
		return
	}

	m.autoCert = &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(m.opts.Domain),
		Cache:      autocert.DirCache(m.opts.AutoCertDir),
		Email:      m.opts.Email,
	}

	util.Info("autocert configured",
		zap.String("domain", m.opts.Domain),
		zap.String("cache_dir", m.opts.AutoCertDir))
}

// GetCertificate tries autocert, then configured files, then falls back
// to a self-signed dev certificate.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if m.autoCert != nil {
		if cert, err := m.autoCert.GetCertificate(hello); err == nil {
			return cert, nil
		}
	}

	if m.opts.CertFile != "" && m.opts.KeyFile != "" {
		if cert, err := tls.LoadX509KeyPair(m.opts.CertFile, m.opts.KeyFile); err == nil {
			return &cert, nil
		}
	}

	return m.devCertificate()
}

func (m *Manager) devCertificate() (*tls.Certificate, error) {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if m.opts.Domain != "" {
		hosts = append([]string{m.opts.Domain}, hosts...)
	}

	cert, err := generateDevCert(m.opts.AutoCertDir, hosts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate dev certificate: %w", err)
	}
	return &cert, nil
}

func (m *Manager) Config() *tls.Config {
	return &tls.Config{
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
		MinVersion:     tls.VersionTLS12,
	}
}

func (m *Manager) AutocertManager() *autocert.Manager {
	return m.autoCert
}
