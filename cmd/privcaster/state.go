package main

import (
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// ---- local state ----

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "privcaster")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "privcaster")
}

func seedPath() string { return filepath.Join(cfgDir(), "dev-seed") }

// loadOrCreateSeed returns the in-process wallet seed, creating one on first use
// so the dev account survives between invocations.
func loadOrCreateSeed() ([]byte, error) {
	b, err := os.ReadFile(seedPath())
	if err == nil {
		return hex.DecodeString(strings.TrimSpace(string(b)))
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(seedPath(), []byte(hex.EncodeToString(seed)), 0o600); err != nil {
		return nil, err
	}
	return seed, nil
}

// ---- bridge transport ----

func loadTLS(useTLS bool, caPath string, skipVerify bool) (credentials.TransportCredentials, error) {
	switch {
	case !useTLS && caPath == "" && !skipVerify:
		return insecure.NewCredentials(), nil
	case skipVerify:
		return credentials.NewTLS(&tls.Config{InsecureSkipVerify: true}), nil
	case caPath == "":
		return credentials.NewClientTLSFromCert(nil, ""), nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return credentials.NewTLS(&tls.Config{RootCAs: pool}), nil
}

// ---- utils ----

func readText(in io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		b, err := io.ReadAll(in)
		return strings.TrimRight(string(b), "\n"), err
	}
	return strings.Join(args, " "), nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
