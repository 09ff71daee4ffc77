package tls

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dapp-works/urpc/adapters/memory"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

// writeSelfSigned writes a throwaway certificate and key and returns their paths.
func writeSelfSigned(t *testing.T) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return certPath, keyPath
}

func TestBuild_Off(t *testing.T) {
	for _, mode := range []string{"", ModeOff} {
		tc, err := Build(Config{Mode: mode}, nil, zerolog.Nop())
		if err != nil || tc != nil {
			t.Errorf("Build(%q) = %v, %v; want nil, nil", mode, tc, err)
		}
	}
}

func TestBuild_File(t *testing.T) {
	certPath, keyPath := writeSelfSigned(t)

	tc, err := Build(Config{Mode: ModeFile, CertFile: certPath, KeyFile: keyPath}, nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(tc.Certificates) != 1 {
		t.Errorf("certificates = %d, want 1", len(tc.Certificates))
	}

	if _, err := Build(Config{Mode: ModeFile, CertFile: certPath, KeyFile: "missing.pem"}, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for missing key file")
	}
}

func TestBuild_ACME(t *testing.T) {
	store := memory.NewDocumentStore()

	if _, err := Build(Config{Mode: ModeACME}, store, zerolog.Nop()); err == nil {
		t.Error("expected error without domains")
	}
	if _, err := Build(Config{Mode: ModeACME, Domains: []string{"example.com"}}, nil, zerolog.Nop()); err == nil {
		t.Error("expected error without a store")
	}

	tc, err := Build(Config{Mode: ModeACME, Domains: []string{"example.com"}, Staging: true}, store, zerolog.Nop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tc.GetCertificate == nil {
		t.Error("acme config should resolve certificates on demand")
	}
	found := false
	for _, p := range tc.NextProtos {
		if p == acme.ALPNProto {
			found = true
		}
	}
	if !found {
		t.Errorf("NextProtos = %v, want %s for TLS-ALPN-01", tc.NextProtos, acme.ALPNProto)
	}
}

func TestBuild_UnknownMode(t *testing.T) {
	if _, err := Build(Config{Mode: "self-signed"}, nil, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	cache := NewCache(store)

	if _, err := cache.Get(ctx, "example.com"); !errors.Is(err, autocert.ErrCacheMiss) {
		t.Fatalf("Get missing = %v, want ErrCacheMiss", err)
	}

	data := []byte{0x00, 0xff, 'p', 'e', 'm'}
	if err := cache.Put(ctx, "example.com", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := cache.Get(ctx, "example.com")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("Get = %v, want %v", got, data)
	}

	keys, _ := store.Keys(ctx)
	if len(keys) != 1 || keys[0] != "acme/example.com" {
		t.Errorf("store keys = %v, want [acme/example.com]", keys)
	}

	if err := cache.Delete(ctx, "example.com"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := cache.Get(ctx, "example.com"); !errors.Is(err, autocert.ErrCacheMiss) {
		t.Errorf("Get after delete = %v, want ErrCacheMiss", err)
	}
}

func TestCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	store := memory.NewDocumentStore()
	store.Put(ctx, "acme/example.com", map[string]any{"not": "bytes"})

	if _, err := NewCache(store).Get(ctx, "example.com"); err == nil {
		t.Error("expected error for non-string entry")
	}
}
