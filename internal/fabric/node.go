package fabric

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/fabctl/internal/discovery"
	"github.com/danmuck/fabctl/internal/identity"
	"github.com/danmuck/fabctl/internal/protocol"
)

// JoinConfig configures one fabric join.
type JoinConfig struct {
	Identity      identity.Identity
	Cookie        string
	DiscoveryPort int
	Discovery     discovery.EnsureConfig
	DialTimeout   time.Duration
}

// Node is this process's presence on the fabric. It holds the hidden
// registration open for the process lifetime; Leave tears it down.
type Node struct {
	self          identity.Identity
	cookie        []byte
	discoveryPort int
	dialTimeout   time.Duration
	reg           *discovery.Client
	nextMessageID atomic.Uint64
}

// Join ensures the discovery daemon is running, then registers the local
// identity in hidden mode: no published endpoint, no connections to any
// peer other than the explicit call target. One-shot, never retried.
func Join(ctx context.Context, cfg JoinConfig) (*Node, error) {
	if cfg.DiscoveryPort <= 0 {
		cfg.DiscoveryPort = discovery.DefaultPort
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Discovery.Addr == "" {
		cfg.Discovery.Addr = fmt.Sprintf("127.0.0.1:%d", cfg.DiscoveryPort)
	}

	if err := discovery.EnsureDaemon(ctx, cfg.Discovery); err != nil {
		return nil, err
	}

	reg := discovery.NewClient(cfg.Discovery.Addr, cfg.DialTimeout)
	if err := reg.Register(ctx, cfg.Identity.String(), 0, true); err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("%w: %v", ErrJoinFailed, err)
	}

	node := &Node{
		self:          cfg.Identity,
		cookie:        []byte(cfg.Cookie),
		discoveryPort: cfg.DiscoveryPort,
		dialTimeout:   cfg.DialTimeout,
		reg:           reg,
	}
	node.nextMessageID.Store(uint64(time.Now().UnixNano()))
	log.Debug().Str("identity", cfg.Identity.String()).Msg("joined fabric")
	return node, nil
}

// Self returns the joined identity.
func (n *Node) Self() identity.Identity {
	return n.self
}

// Leave deregisters the identity and drops the discovery connection.
func (n *Node) Leave() error {
	if n.reg == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.dialTimeout)
	defer cancel()
	_ = n.reg.Deregister(ctx, n.self.String())
	err := n.reg.Close()
	n.reg = nil
	return err
}

// Call performs one blocking remote call against target. Output frames
// streamed while the remote executes are handed to onOutput in arrival
// order; an onOutput error aborts the call. The ctx deadline bounds
// every network step.
//
// Errors returned here are communication-layer failures; a completed
// call always yields a Result, even one carrying a remote error term.
func (n *Node) Call(ctx context.Context, target identity.Identity, call protocol.Call, onOutput func(protocol.Output) error) (protocol.Result, error) {
	if call.CallID == "" {
		call.CallID = uuid.NewString()
	}

	port, err := n.lookupTarget(ctx, target)
	if err != nil {
		return protocol.Result{}, err
	}

	addr := net.JoinHostPort(target.Host(), strconv.Itoa(port))
	dialer := net.Dialer{Timeout: n.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("%w: dial %s: %v", ErrLinkDown, addr, err)
	}
	defer conn.Close()
	reader := bufio.NewReader(conn)

	if err := n.hello(ctx, conn, reader, target); err != nil {
		return protocol.Result{}, err
	}

	frame, err := protocol.EncodeCallFrame(n.nextMessageID.Add(1), call, n.cookie)
	if err != nil {
		return protocol.Result{}, err
	}
	if err := n.write(ctx, conn, frame); err != nil {
		return protocol.Result{}, fmt.Errorf("%w: send call: %v", ErrLinkDown, err)
	}

	for {
		if err := n.setReadDeadline(ctx, conn); err != nil {
			return protocol.Result{}, err
		}
		msg, err := protocol.Decode(reader)
		if err != nil {
			return protocol.Result{}, fmt.Errorf("%w: %v", ErrLinkDown, err)
		}

		switch msg.Header.MessageType {
		case protocol.MsgOutput:
			out, err := protocol.DecodeOutputFrame(msg)
			if err != nil {
				return protocol.Result{}, fmt.Errorf("%w: %v", ErrLinkDown, err)
			}
			if out.CallID != call.CallID {
				return protocol.Result{}, fmt.Errorf("%w: output for call %q during call %q", ErrLinkDown, out.CallID, call.CallID)
			}
			if err := onOutput(out); err != nil {
				return protocol.Result{}, err
			}

		case protocol.MsgResult:
			res, err := protocol.DecodeResultFrame(msg)
			if err != nil {
				return protocol.Result{}, fmt.Errorf("%w: %v", ErrLinkDown, err)
			}
			if res.CallID != call.CallID {
				return protocol.Result{}, fmt.Errorf("%w: result for call %q during call %q", ErrLinkDown, res.CallID, call.CallID)
			}
			return res, nil

		default:
			return protocol.Result{}, fmt.Errorf("%w: unexpected message type %d", ErrLinkDown, msg.Header.MessageType)
		}
	}
}

// lookupTarget resolves the target's call port via the discovery daemon
// on the target's own host.
func (n *Node) lookupTarget(ctx context.Context, target identity.Identity) (int, error) {
	addr := net.JoinHostPort(target.Host(), strconv.Itoa(n.discoveryPort))
	lookup := discovery.NewClient(addr, n.dialTimeout)
	defer lookup.Close()

	port, err := lookup.Lookup(ctx, target.String())
	if err != nil {
		if errors.Is(err, discovery.ErrNotFound) {
			return 0, fmt.Errorf("%w: %s", ErrTargetUnknown, target.String())
		}
		return 0, fmt.Errorf("%w: %v", ErrLinkDown, err)
	}
	return port, nil
}

func (n *Node) hello(ctx context.Context, conn net.Conn, reader *bufio.Reader, target identity.Identity) error {
	hello := protocol.Hello{
		Caller: n.self.String(),
		Target: target.String(),
		Hidden: true,
	}
	frame, err := protocol.EncodeHelloFrame(n.nextMessageID.Add(1), hello, n.cookie)
	if err != nil {
		return err
	}
	if err := n.write(ctx, conn, frame); err != nil {
		return fmt.Errorf("%w: send hello: %v", ErrLinkDown, err)
	}

	if err := n.setReadDeadline(ctx, conn); err != nil {
		return err
	}
	msg, err := protocol.Decode(reader)
	if err != nil {
		return fmt.Errorf("%w: read hello.ack: %v", ErrLinkDown, err)
	}
	ack, err := protocol.DecodeHelloAckFrame(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLinkDown, err)
	}
	if ack.Status != protocol.StatusAccepted {
		return fmt.Errorf("%w: %s", ErrHelloRejected, ack.Reason)
	}
	return nil
}

func (n *Node) write(ctx context.Context, conn net.Conn, frame []byte) error {
	deadline := time.Now().Add(n.dialTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	_, err := conn.Write(frame)
	return err
}

func (n *Node) setReadDeadline(ctx context.Context, conn net.Conn) error {
	deadline := time.Now().Add(n.dialTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok {
		deadline = ctxDeadline
	}
	return conn.SetReadDeadline(deadline)
}
