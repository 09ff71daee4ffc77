// Package tls builds the server TLS configuration from static certificate
// files or from ACME (Let's Encrypt) with certificates cached in a
// ports.DocumentStore.
package tls

import (
	"context"
	cryptotls "crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dapp-works/urpc/ports"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

const (
	// LetsEncrypt staging directory (for testing)
	letsEncryptStaging = "https://acme-staging-v02.api.letsencrypt.org/directory"

	// cachePrefix namespaces ACME data among the other documents.
	cachePrefix = "acme/"
)

// Modes.
const (
	ModeOff  = "off"
	ModeFile = "file"
	ModeACME = "acme"
)

// Config configures TLS termination.
type Config struct {
	Mode     string
	CertFile string
	KeyFile  string
	Domains  []string
	Email    string
	Staging  bool
}

// Build returns the server TLS configuration, or nil when Mode is off.
// ACME mode answers TLS-ALPN-01 challenges on the TLS listener itself.
func Build(cfg Config, store ports.DocumentStore, logger zerolog.Logger) (*cryptotls.Config, error) {
	switch cfg.Mode {
	case "", ModeOff:
		return nil, nil

	case ModeFile:
		cert, err := cryptotls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load key pair: %w", err)
		}
		return &cryptotls.Config{
			Certificates: []cryptotls.Certificate{cert},
			MinVersion:   cryptotls.VersionTLS12,
		}, nil

	case ModeACME:
		if len(cfg.Domains) == 0 {
			return nil, errors.New("acme mode needs at least one domain")
		}
		if store == nil {
			return nil, errors.New("acme mode needs a certificate store")
		}
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      NewCache(store),
			HostPolicy: autocert.HostWhitelist(cfg.Domains...),
			Email:      cfg.Email,
		}
		if cfg.Staging {
			m.Client = &acme.Client{DirectoryURL: letsEncryptStaging}
		}
		logger.Info().
			Strs("domains", cfg.Domains).
			Bool("staging", cfg.Staging).
			Msg("acme certificates enabled")

		tc := m.TLSConfig()
		tc.MinVersion = cryptotls.VersionTLS12
		return tc, nil

	default:
		return nil, fmt.Errorf("unknown tls mode %q", cfg.Mode)
	}
}

// Cache implements autocert.Cache over a document store. Entries are kept
// as base64 strings under the "acme/" key prefix.
type Cache struct {
	store ports.DocumentStore
}

// NewCache creates a certificate cache.
func NewCache(store ports.DocumentStore) *Cache {
	return &Cache{store: store}
}

// Get implements autocert.Cache.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	doc, err := c.store.Get(ctx, cachePrefix+key)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, autocert.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	s, ok := doc.(string)
	if !ok {
		return nil, fmt.Errorf("cache entry %s: unexpected %T", key, doc)
	}
	return base64.StdEncoding.DecodeString(s)
}

// Put implements autocert.Cache.
func (c *Cache) Put(ctx context.Context, key string, data []byte) error {
	return c.store.Put(ctx, cachePrefix+key, base64.StdEncoding.EncodeToString(data))
}

// Delete implements autocert.Cache.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.store.Delete(ctx, cachePrefix+key)
}

var _ autocert.Cache = (*Cache)(nil)
