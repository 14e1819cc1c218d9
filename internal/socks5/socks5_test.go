package socks5

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	txsocks5 "github.com/txthinking/socks5"
	"golang.org/x/sync/errgroup"
)

// serveOne plays the server side of one CONNECT handshake on conn and
// answers with rep.
func serveOne(conn net.Conn, auth Auth, rep byte) error {
	if _, err := txsocks5.NewNegotiationRequestFrom(conn); err != nil {
		return err
	}

	if auth.Username == "" {
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(conn); err != nil {
			return err
		}
	} else {
		if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(conn); err != nil {
			return err
		}
		urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
		if err != nil {
			return err
		}
		if string(urq.Uname) != auth.Username || string(urq.Passwd) != auth.Password {
			_, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
			return err
		}
		if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
			return err
		}
	}

	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return err
	}
	if req.Cmd != txsocks5.CmdConnect {
		return fmt.Errorf("unexpected command: %d", req.Cmd)
	}

	_, err = txsocks5.NewReply(rep, txsocks5.ATYPIPv4, []byte{127, 0, 0, 1}, []byte{0x30, 0x39}).WriteTo(conn)
	return err
}

func TestClientDial(t *testing.T) {
	tests := []struct {
		name       string
		serverAuth Auth
		clientAuth Auth
		rep        byte
		wantErr    bool
		refused    bool
		timeout    bool
	}{
		{name: "no_auth", rep: txsocks5.RepSuccess},
		{name: "user_pass", serverAuth: Auth{Username: "user", Password: "pass"}, clientAuth: Auth{Username: "user", Password: "pass"}, rep: txsocks5.RepSuccess},
		{name: "refused", rep: txsocks5.RepConnectionRefused, wantErr: true, refused: true},
		{name: "ttl_expired", rep: txsocks5.RepTTLExpired, wantErr: true, timeout: true},
		{name: "host_unreachable", rep: txsocks5.RepHostUnreachable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clientConn, serverConn := net.Pipe()
			defer clientConn.Close()
			defer serverConn.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				return serveOne(serverConn, tt.serverAuth, tt.rep)
			})

			err := ClientDial(clientConn, tt.clientAuth, "127.0.0.1:80")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if got := errors.Is(err, syscall.ECONNREFUSED); got != tt.refused {
				t.Fatalf("errors.Is(err, ECONNREFUSED)=%v want %v (err=%v)", got, tt.refused, err)
			}
			var re *ReplyError
			if tt.wantErr && !errors.As(err, &re) {
				t.Fatalf("expected *ReplyError, got %T", err)
			}
			if re != nil && re.Timeout() != tt.timeout {
				t.Fatalf("Timeout()=%v want %v", re.Timeout(), tt.timeout)
			}
			if err := g.Wait(); err != nil {
				t.Fatal(err)
			}
		})
	}
}

func TestClientDialAuthRejected(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	g := errgroup.Group{}
	g.Go(func() error {
		return serveOne(serverConn, Auth{Username: "user", Password: "pass"}, txsocks5.RepSuccess)
	})

	err := ClientDial(clientConn, Auth{Username: "user", Password: "wrong"}, "example.test:443")
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestClientDialRequiresCredentials(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go func() {
		defer serverConn.Close()
		if _, err := txsocks5.NewNegotiationRequestFrom(serverConn); err != nil {
			return
		}
		_, _ = txsocks5.NewNegotiationReply(txsocks5.MethodUsernamePassword).WriteTo(serverConn)
	}()

	if err := ClientDial(clientConn, Auth{}, "127.0.0.1:80"); err == nil {
		t.Fatal("expected error when server demands credentials")
	}
}
