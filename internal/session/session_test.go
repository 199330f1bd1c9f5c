package session

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

type staticVerifier struct {
	username, password string
}

func (v staticVerifier) Verify(username, password string) bool {
	return username == v.username && password == v.password
}

func handshakePair(t *testing.T) (client, server *Session) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	type result struct {
		s   *Session
		err error
	}
	serverCh := make(chan result, 1)
	go func() {
		s, err := ServerHandshake(serverConn, "s-1", time.Second)
		serverCh <- result{s, err}
	}()

	c, err := ClientHandshake(clientConn, "c-1", time.Second)
	if err != nil {
		t.Fatalf("ClientHandshake() error = %v", err)
	}
	r := <-serverCh
	if r.err != nil {
		t.Fatalf("ServerHandshake() error = %v", r.err)
	}
	return c, r.s
}

func TestHandshakeEstablishesMatchingKeys(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	if client.keys.EncKey != server.keys.EncKey || client.keys.MacKey != server.keys.MacKey {
		t.Fatal("client and server derived different session keys")
	}
	if client.Phase() != PhaseAwaitingAuthResult {
		t.Errorf("client phase = %v, want AwaitingAuthResult", client.Phase())
	}
	if server.Phase() != PhaseAwaitingAuth {
		t.Errorf("server phase = %v, want AwaitingAuth", server.Phase())
	}
	if client.PeerID != "s-1" || server.PeerID != "c-1" {
		t.Errorf("peer ids not exchanged correctly: client.PeerID=%q server.PeerID=%q", client.PeerID, server.PeerID)
	}
}

func TestAuthSuccess(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	verifier := staticVerifier{username: "alice", password: "hunter2"}

	done := make(chan error, 1)
	go func() {
		done <- server.ServerAuthenticate(verifier, time.Second)
	}()

	if err := client.ClientAuthenticate("alice", "hunter2", time.Second); err != nil {
		t.Fatalf("ClientAuthenticate() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("ServerAuthenticate() error = %v", err)
	}

	if client.Phase() != PhaseEstablished || server.Phase() != PhaseEstablished {
		t.Fatalf("phases after auth: client=%v server=%v, want Established", client.Phase(), server.Phase())
	}
	if server.AuthenticatedUser != "alice" {
		t.Errorf("server.AuthenticatedUser = %q, want alice", server.AuthenticatedUser)
	}
}

func TestAuthFailureRejected(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()

	verifier := staticVerifier{username: "alice", password: "hunter2"}

	done := make(chan error, 1)
	go func() {
		done <- server.ServerAuthenticate(verifier, time.Second)
	}()

	err := client.ClientAuthenticate("alice", "wrong", time.Second)
	var rejected *AuthRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("ClientAuthenticate() error = %v, want *AuthRejectedError", err)
	}

	serverErr := <-done
	if !errors.As(serverErr, &rejected) {
		t.Fatalf("ServerAuthenticate() error = %v, want *AuthRejectedError", serverErr)
	}
}

func TestSendRecvRoundTrip(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	verifier := staticVerifier{username: "alice", password: "hunter2"}
	done := make(chan error, 1)
	go func() { done <- server.ServerAuthenticate(verifier, time.Second) }()
	if err := client.ClientAuthenticate("alice", "hunter2", time.Second); err != nil {
		t.Fatalf("ClientAuthenticate() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("ServerAuthenticate() error = %v", err)
	}

	msg := []byte("Hello, World!")
	sendErr := make(chan error, 1)
	go func() { sendErr <- client.Send(msg) }()

	got, err := server.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if err := <-sendErr; err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if !bytes.Equal(got, msg) {
		t.Errorf("Recv() = %q, want %q", got, msg)
	}
}

func TestHeartbeatAnswered(t *testing.T) {
	client, server := handshakePair(t)
	defer client.Close()
	defer server.Close()

	verifier := staticVerifier{username: "alice", password: "hunter2"}
	done := make(chan error, 1)
	go func() { done <- server.ServerAuthenticate(verifier, time.Second) }()
	if err := client.ClientAuthenticate("alice", "hunter2", time.Second); err != nil {
		t.Fatalf("ClientAuthenticate() error = %v", err)
	}
	<-done

	// net.Pipe is unbuffered: the server must be reading before the
	// client's heartbeat write can complete.
	recvErr := make(chan error, 1)
	go func() {
		_, err := server.Recv(time.Second)
		recvErr <- err
	}()

	sendErr := make(chan error, 1)
	go func() { sendErr <- client.SendHeartbeat() }()
	if err := <-sendErr; err != nil {
		t.Fatalf("SendHeartbeat() error = %v", err)
	}

	// The server answers the heartbeat in place and keeps waiting for
	// application data; the client should observe the reply frame.
	reply, err := client.readFrame(time.Second)
	if err != nil {
		t.Fatalf("readFrame() error = %v", err)
	}
	if reply.Type != 4 { // FrameHeartbeat
		t.Errorf("reply frame type = %d, want HEARTBEAT", reply.Type)
	}
}

func TestCloseTransitionsPhase(t *testing.T) {
	client, server := handshakePair(t)
	defer server.Close()

	verifier := staticVerifier{username: "alice", password: "hunter2"}
	done := make(chan error, 1)
	go func() { done <- server.ServerAuthenticate(verifier, time.Second) }()
	if err := client.ClientAuthenticate("alice", "hunter2", time.Second); err != nil {
		t.Fatalf("ClientAuthenticate() error = %v", err)
	}
	<-done

	recvErr := make(chan error, 1)
	go func() {
		_, err := server.Recv(time.Second)
		recvErr <- err
	}()

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if err := <-recvErr; !errors.Is(err, ErrClosed) {
		t.Fatalf("Recv() error = %v, want ErrClosed", err)
	}
	if server.Phase() != PhaseClosed {
		t.Errorf("server phase = %v, want Closed", server.Phase())
	}
}
