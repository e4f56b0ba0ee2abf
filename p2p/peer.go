package p2p

import (
	"errors"
	"net"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/slotchain/slotchain/common"
	"github.com/slotchain/slotchain/log"
)

// IdleTimeout disconnects a peer that has sent nothing for this long
// (spec.md §5: "peer idle timeout 300 s").
const IdleTimeout = 300 * time.Second

var (
	ErrDuplicateConnection = errors.New("p2p: duplicate connection for peer")
	ErrHandshakeMismatch   = errors.New("p2p: handshake version/network_id mismatch")
	ErrNotHandshakeFirst   = errors.New("p2p: first message was not Handshake")
)

// NewNonce mints a handshake nonce, grounded on the teacher's use of
// hashicorp/go-uuid for connection/session identifiers.
func NewNonce() (string, error) { return uuid.GenerateUUID() }

// Peer is one TCP connection to another node, after a successful
// handshake. spec.md §4.8 caps this at one active connection per peer
// identity; Server enforces that uniqueness, not Peer itself.
type Peer struct {
	conn    net.Conn
	Address common.Address
	NetAddr string

	limiter *PeerLimiter

	writeMu sync.Mutex
	log     log.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func newPeer(conn net.Conn, addr common.Address, netAddr string) *Peer {
	return &Peer{
		conn:    conn,
		Address: addr,
		NetAddr: netAddr,
		limiter: NewPeerLimiter(),
		log:     log.NewModuleLogger("p2p").New("peer", addr),
		closed:  make(chan struct{}),
	}
}

// handshake performs the mandatory version/network_id/nonce exchange.
// The initiator sends first; both sides then read the peer's handshake
// and validate version+network_id before anything else is accepted
// (spec.md §4.8, §6.2: "Any peer sending another message first is
// disconnected").
func handshake(conn net.Conn, self HandshakePayload, initiator bool) (HandshakePayload, error) {
	send := func() error {
		return writeFrame(conn, EncodeMessage(Message{Kind: KindHandshake, Payload: EncodeHandshake(self)}))
	}
	recv := func() (HandshakePayload, error) {
		body, err := readFrame(conn)
		if err != nil {
			return HandshakePayload{}, err
		}
		msg, err := DecodeMessage(body)
		if err != nil {
			return HandshakePayload{}, err
		}
		if msg.Kind != KindHandshake {
			return HandshakePayload{}, ErrNotHandshakeFirst
		}
		return DecodeHandshake(msg.Payload)
	}

	var peerHS HandshakePayload
	var err error
	if initiator {
		if err = send(); err != nil {
			return HandshakePayload{}, err
		}
		peerHS, err = recv()
	} else {
		peerHS, err = recv()
		if err == nil {
			err = send()
		}
	}
	if err != nil {
		return HandshakePayload{}, err
	}
	if peerHS.Version != self.Version || peerHS.NetworkID != self.NetworkID {
		return HandshakePayload{}, ErrHandshakeMismatch
	}
	return peerHS, nil
}

// Send writes one message frame, serialized against concurrent writers
// on the same connection.
func (p *Peer) Send(m Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(IdleTimeout))
	return writeFrame(p.conn, EncodeMessage(m))
}

// ReadLoop blocks reading frames until the connection errors or closes,
// invoking onMessage for each. It owns the read side exclusively.
func (p *Peer) ReadLoop(onMessage func(Message) error) error {
	for {
		p.conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		body, err := readFrame(p.conn)
		if err != nil {
			return err
		}
		msg, err := DecodeMessage(body)
		if err != nil {
			return err
		}
		if err := onMessage(msg); err != nil {
			return err
		}
	}
}

func (p *Peer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.closed)
		err = p.conn.Close()
	})
	return err
}

func (p *Peer) Done() <-chan struct{} { return p.closed }
