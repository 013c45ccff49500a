package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/chronologos/ttyrelay/internal/auth"
	"github.com/chronologos/ttyrelay/internal/relay"
)

func testChallenges(t *testing.T) []auth.Challenge {
	t.Helper()
	c, err := auth.NewChallenge("Password: ", "open sesame", false)
	if err != nil {
		t.Fatal(err)
	}
	return []auth.Challenge{c}
}

// startServer runs a Server with handle on a loopback port.
func startServer(t *testing.T, handle Handler) string {
	t.Helper()
	keyPEM, err := GenerateHostKey()
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.ParsePrivateKey(keyPEM)
	if err != nil {
		t.Fatal(err)
	}
	srv := New(Config{
		HostKey:       signer,
		ServerVersion: "SSH-2.0-TTYRELAY",
		Greeting:      "ttyrelay",
		Instructions:  "Answer the prompts.",
		Challenges:    testChallenges(t),
		IdleTimeout:   time.Minute,
		Log:           slog.New(slog.DiscardHandler),
	}, handle)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return ln.Addr().String()
}

type prompt struct {
	name, instruction string
	questions         []string
}

func dial(t *testing.T, addr, user, answer string, seen *prompt) (*ssh.Client, error) {
	t.Helper()
	return ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User: user,
		Auth: []ssh.AuthMethod{ssh.KeyboardInteractive(
			func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				if seen != nil {
					*seen = prompt{name, instruction, questions}
				}
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = answer
				}
				return answers, nil
			})},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         5 * time.Second,
	})
}

func readUntil(t *testing.T, r io.Reader, target string) string {
	t.Helper()
	got := make(chan string, 1)
	go func() {
		var acc []byte
		buf := make([]byte, 4096)
		for {
			n, err := r.Read(buf)
			acc = append(acc, buf[:n]...)
			if strings.Contains(string(acc), target) || err != nil {
				got <- string(acc)
				return
			}
		}
	}()
	select {
	case s := <-got:
		if !strings.Contains(s, target) {
			t.Fatalf("stream ended before %q; got %q", target, s)
		}
		return s
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout waiting for %q", target)
		return ""
	}
}

func TestShellSession(t *testing.T) {
	handled := make(chan relay.Size, 1)
	addr := startServer(t, func(ctx context.Context, sh relay.Shell) error {
		size := sh.Size()
		fmt.Fprintf(sh, "hello %s %dx%d\r\n", sh.User(), size.Width, size.Height)

		buf := make([]byte, 16)
		n, err := sh.Read(buf)
		if err != nil {
			return err
		}
		fmt.Fprintf(sh, "got %q\r\n", buf[:n])

		select {
		case sz := <-sh.Resizes():
			handled <- sz
		case <-time.After(5 * time.Second):
			return errors.New("no resize")
		}
		return nil
	})

	var seen prompt
	client, err := dial(t, addr, "alice", "open sesame", &seen)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	if seen.name != "ttyrelay" || seen.instruction != "Answer the prompts." || len(seen.questions) != 1 || seen.questions[0] != "Password: " {
		t.Fatalf("keyboard-interactive prompt = %+v", seen)
	}
	if v := string(client.ServerVersion()); v != "SSH-2.0-TTYRELAY" {
		t.Fatalf("server version = %q", v)
	}

	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	stdin, err := sess.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.RequestPty("xterm-256color", 30, 100, ssh.TerminalModes{}); err != nil {
		t.Fatal(err)
	}
	if err := sess.Shell(); err != nil {
		t.Fatal(err)
	}

	readUntil(t, stdout, "hello alice 100x30\r\n")
	stdin.Write([]byte("ls"))
	readUntil(t, stdout, `got "ls"`)

	if err := sess.WindowChange(50, 132); err != nil {
		t.Fatal(err)
	}
	select {
	case sz := <-handled:
		if sz != (relay.Size{Width: 132, Height: 50}) {
			t.Fatalf("resize = %+v", sz)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("resize never reached the handler")
	}

	if err := sess.Wait(); err != nil {
		t.Fatalf("exit: %v", err)
	}
}

func TestExitStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{relay.ErrEndedByDevice, 0},
		{relay.ErrPairingTimeout, 1},
		{fmt.Errorf("wrapped: %w", relay.ErrDeviceGone), 1},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			addr := startServer(t, func(context.Context, relay.Shell) error { return tt.err })
			client, err := dial(t, addr, "bob", "open sesame", nil)
			if err != nil {
				t.Fatal(err)
			}
			defer client.Close()
			sess, err := client.NewSession()
			if err != nil {
				t.Fatal(err)
			}
			defer sess.Close()
			if err := sess.Shell(); err != nil {
				t.Fatal(err)
			}

			err = sess.Wait()
			var exit *ssh.ExitError
			switch {
			case tt.want == 0 && err != nil:
				t.Fatalf("Wait = %v, want clean exit", err)
			case tt.want != 0 && (!errors.As(err, &exit) || exit.ExitStatus() != tt.want):
				t.Fatalf("Wait = %v, want exit status %d", err, tt.want)
			}
		})
	}
}

func TestWrongAnswerRejected(t *testing.T) {
	addr := startServer(t, func(context.Context, relay.Shell) error {
		t.Error("handler ran for a rejected login")
		return nil
	})
	if _, err := dial(t, addr, "mallory", "let me in", nil); err == nil {
		t.Fatal("login with a wrong answer should fail")
	}
}

func TestNoPtyUsesZeroSize(t *testing.T) {
	sizes := make(chan relay.Size, 1)
	addr := startServer(t, func(_ context.Context, sh relay.Shell) error {
		sizes <- sh.Size()
		return nil
	})
	client, err := dial(t, addr, "carol", "open sesame", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	sess, err := client.NewSession()
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	if err := sess.Shell(); err != nil {
		t.Fatal(err)
	}
	if sz := <-sizes; sz != (relay.Size{}) {
		t.Fatalf("size without pty = %+v", sz)
	}
}

func TestLoadOrCreateHostKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "hostkey")

	first, err := LoadOrCreateHostKey(path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("host key mode = %o, want 600", perm)
	}
	if first.PublicKey().Type() != ssh.KeyAlgoED25519 {
		t.Fatalf("key type = %s", first.PublicKey().Type())
	}

	second, err := LoadOrCreateHostKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if ssh.FingerprintSHA256(first.PublicKey()) != ssh.FingerprintSHA256(second.PublicKey()) {
		t.Fatal("host key changed between runs")
	}
}

func TestLoadHostKeyGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hostkey")
	if err := os.WriteFile(path, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreateHostKey(path); err == nil {
		t.Fatal("expected parse error")
	}
}
