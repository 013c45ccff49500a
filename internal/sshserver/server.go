// Package sshserver is the relay's SSH front door. Users authenticate with
// keyboard-interactive challenges, request a pty and a shell, and the shell
// is handed to the relay.
package sshserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/chronologos/ttyrelay/internal/auth"
	"github.com/chronologos/ttyrelay/internal/relay"
)

const handshakeTimeout = 30 * time.Second

// Handler runs one shell until it ends. The returned error selects the exit
// status reported to the client.
type Handler func(ctx context.Context, sh relay.Shell) error

type Config struct {
	HostKey       ssh.Signer
	ServerVersion string
	// Greeting and Instructions head the keyboard-interactive exchange.
	Greeting     string
	Instructions string
	Challenges   []auth.Challenge
	// IdleTimeout drops connections with no traffic either way.
	IdleTimeout time.Duration
	Log         *slog.Logger
}

type Server struct {
	cfg    Config
	sshCfg *ssh.ServerConfig
	handle Handler
	log    *slog.Logger
	wg     sync.WaitGroup
}

func New(cfg Config, handle Handler) *Server {
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		handle: handle,
		log:    cfg.Log.With("component", "ssh"),
	}
	s.sshCfg = &ssh.ServerConfig{
		ServerVersion:               cfg.ServerVersion,
		KeyboardInteractiveCallback: s.challenge,
	}
	s.sshCfg.AddHostKey(cfg.HostKey)
	return s
}

func (s *Server) challenge(meta ssh.ConnMetadata, client ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
	questions, echos := auth.Prompts(s.cfg.Challenges)
	answers, err := client(s.cfg.Greeting, s.cfg.Instructions, questions, echos)
	if err != nil {
		return nil, err
	}
	if err := auth.Verify(s.cfg.Challenges, answers); err != nil {
		s.log.Info("login rejected", "user", meta.User(), "remote", meta.RemoteAddr(), "err", err)
		return nil, err
	}
	return &ssh.Permissions{}, nil
}

// ListenAndServe listens on addr and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("ssh listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then waits for open
// connections to wind down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("listening", "addr", ln.Addr().String())
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer s.wg.Wait()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ssh accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, nc)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	log := s.log.With("remote", nc.RemoteAddr().String())

	ic := newIdleConn(nc, handshakeTimeout)
	conn, chans, reqs, err := ssh.NewServerConn(ic, s.sshCfg)
	if err != nil {
		log.Debug("handshake failed", "err", err)
		nc.Close()
		return
	}
	ic.setTimeout(s.cfg.IdleTimeout)
	defer conn.Close()
	log = log.With("user", conn.User())
	log.Info("ssh login")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		conn.Wait()
		cancel()
	}()
	// Shutdown hangs up on clients still logged in.
	context.AfterFunc(ctx, func() { conn.Close() })
	go ssh.DiscardRequests(reqs)

	var wg sync.WaitGroup
	for nch := range chans {
		if nch.ChannelType() != "session" {
			nch.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := nch.Accept()
		if err != nil {
			log.Debug("channel accept failed", "err", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.serveSession(ctx, log, conn.User(), ch, requests)
		}()
	}
	wg.Wait()
	log.Info("ssh logout")
}

// serveSession handles one session channel's requests and runs the shell.
func (s *Server) serveSession(ctx context.Context, log *slog.Logger, user string, ch ssh.Channel, requests <-chan *ssh.Request) {
	sess := newSession(ch, user)
	defer ch.Close()

	var started bool
	done := make(chan error, 1)
	for {
		select {
		case req, ok := <-requests:
			if !ok {
				if started {
					<-done
				}
				return
			}
			switch req.Type {
			case "pty-req":
				ok := sess.setPty(req.Payload)
				req.Reply(ok, nil)
			case "window-change":
				sess.windowChange(req.Payload)
			case "env":
				req.Reply(true, nil)
			case "shell":
				if started {
					req.Reply(false, nil)
					continue
				}
				started = true
				req.Reply(true, nil)
				go func() { done <- s.handle(ctx, sess) }()
			default:
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		case err := <-done:
			status := exitStatus(err)
			log.Debug("shell finished", "err", err, "status", status)
			ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
			go ssh.DiscardRequests(requests)
			return
		}
	}
}

func exitStatus(err error) uint32 {
	switch {
	case err == nil, errors.Is(err, relay.ErrEndedByDevice), errors.Is(err, relay.ErrShellClosed):
		return 0
	default:
		return 1
	}
}
