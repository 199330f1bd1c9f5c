package transport

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"
)

func writeTestCert(t *testing.T) (certFile, keyFile string) {
	t.Helper()
	dir := t.TempDir()
	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := GenerateAndSaveCert(certFile, keyFile, "localhost", time.Hour); err != nil {
		t.Fatalf("GenerateAndSaveCert() error = %v", err)
	}
	return certFile, keyFile
}

func TestListenAndDialRoundTrip(t *testing.T) {
	certFile, keyFile := writeTestCert(t)

	serverTLS, err := LoadServerTLSConfig(certFile, keyFile, "")
	if err != nil {
		t.Fatalf("LoadServerTLSConfig() error = %v", err)
	}
	ln, err := Listen("127.0.0.1:0", serverTLS)
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()

	acceptErr := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := io.ReadFull(conn, buf); err != nil {
			acceptErr <- err
			return
		}
		if string(buf) != "hello" {
			acceptErr <- nil
			return
		}
		_, err = conn.Write([]byte("world"))
		acceptErr <- err
	}()

	clientTLS, err := LoadClientTLSConfig("", true)
	if err != nil {
		t.Fatalf("LoadClientTLSConfig() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, ln.Addr().String(), clientTLS)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	buf := make([]byte, 5)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("ReadFull() error = %v", err)
	}
	if string(buf) != "world" {
		t.Errorf("read %q, want world", buf)
	}
	if err := <-acceptErr; err != nil {
		t.Fatalf("server goroutine error = %v", err)
	}
}

func TestLoadServerTLSConfigMissingFile(t *testing.T) {
	if _, err := LoadServerTLSConfig("nope.pem", "nope-key.pem", ""); err == nil {
		t.Fatal("LoadServerTLSConfig() expected error for missing files")
	}
}
