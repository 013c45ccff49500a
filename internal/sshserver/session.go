package sshserver

import (
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/chronologos/ttyrelay/internal/relay"
)

// session adapts an SSH session channel to relay.Shell.
type session struct {
	ssh.Channel
	user    string
	resizes chan relay.Size

	mu   sync.Mutex
	size relay.Size
}

func newSession(ch ssh.Channel, user string) *session {
	return &session{
		Channel: ch,
		user:    user,
		resizes: make(chan relay.Size, 1),
	}
}

func (s *session) User() string { return s.user }

func (s *session) Size() relay.Size {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

func (s *session) Resizes() <-chan relay.Size { return s.resizes }

// RFC 4254 section 6.2.
type ptyRequest struct {
	Term    string
	Columns uint32
	Rows    uint32
	Width   uint32
	Height  uint32
	Modes   string
}

// RFC 4254 section 6.7.
type windowChange struct {
	Columns uint32
	Rows    uint32
	Width   uint32
	Height  uint32
}

func (s *session) setPty(payload []byte) bool {
	var req ptyRequest
	if err := ssh.Unmarshal(payload, &req); err != nil {
		return false
	}
	s.mu.Lock()
	s.size = relay.Size{Width: int(req.Columns), Height: int(req.Rows)}
	s.mu.Unlock()
	return true
}

// windowChange records the new size and offers it to the relay, replacing
// any change the relay has not picked up yet.
func (s *session) windowChange(payload []byte) {
	var req windowChange
	if err := ssh.Unmarshal(payload, &req); err != nil {
		return
	}
	size := relay.Size{Width: int(req.Columns), Height: int(req.Rows)}
	s.mu.Lock()
	s.size = size
	s.mu.Unlock()
	for {
		select {
		case s.resizes <- size:
			return
		default:
		}
		select {
		case <-s.resizes:
		default:
		}
	}
}
