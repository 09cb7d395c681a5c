package fabric

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/fabctl/internal/auth"
	"github.com/danmuck/fabctl/internal/expr"
	"github.com/danmuck/fabctl/internal/identity"
	"github.com/danmuck/fabctl/internal/protocol"
)

// ServerConfig configures one serving node runtime.
type ServerConfig struct {
	Identity     identity.Identity
	Cookie       string
	Pid          int
	WriteTimeout time.Duration
}

// Server is the serving side of the call protocol: it accepts one hello
// and one call per connection, executes the operation, streams output
// frames while it runs, and terminates with exactly one result frame.
type Server struct {
	cfg           ServerConfig
	nextMessageID atomic.Uint64
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Pid == 0 {
		cfg.Pid = os.Getpid()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	s := &Server{cfg: cfg}
	s.nextMessageID.Store(uint64(time.Now().UnixNano()))
	return s
}

// Serve accepts callers on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	log.Info().Str("identity", s.cfg.Identity.String()).Str("addr", ln.Addr().String()).Msg("fabric node serving")

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	msg, err := protocol.Decode(reader)
	if err != nil {
		return
	}
	hello, err := protocol.DecodeHelloFrame(msg)
	if err != nil {
		return
	}

	if !s.authorized(msg.AuthBlock) {
		s.ack(conn, protocol.HelloAck{Status: protocol.StatusRejected, Reason: "bad cookie"})
		return
	}
	if hello.Target != s.cfg.Identity.String() {
		s.ack(conn, protocol.HelloAck{Status: protocol.StatusRejected, Reason: fmt.Sprintf("not serving %q", hello.Target)})
		return
	}
	if !s.ack(conn, protocol.HelloAck{Status: protocol.StatusAccepted}) {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	msg, err = protocol.Decode(reader)
	if err != nil {
		return
	}
	call, err := protocol.DecodeCallFrame(msg)
	if err != nil {
		return
	}
	if !s.authorized(msg.AuthBlock) {
		s.sendResult(conn, protocol.Result{CallID: call.CallID, Rejected: true, Reason: "bad cookie"})
		return
	}

	log.Debug().Str("caller", hello.Caller).Str("call_id", call.CallID).Msg("executing call")
	env := s.execute(conn, call)
	value, err := EncodeEnvelope(env)
	if err != nil {
		s.sendResult(conn, protocol.Result{CallID: call.CallID, Rejected: true, Reason: "encode result"})
		return
	}
	s.sendResult(conn, protocol.Result{CallID: call.CallID, Value: value})
}

// execute runs one operation. Remote logical failures land in the
// envelope's error field; they are still completed calls.
func (s *Server) execute(conn net.Conn, call protocol.Call) ResultEnvelope {
	if len(call.EvalForm) > 0 {
		form, err := expr.UnmarshalForm(call.EvalForm)
		if err != nil {
			return ResultEnvelope{Error: err.Error()}
		}
		sink := &frameSink{srv: s, conn: conn, callID: call.CallID}
		value, err := expr.Eval(form, expr.Env{Pid: s.cfg.Pid}, sink)
		if err != nil {
			return ResultEnvelope{Error: err.Error()}
		}
		return ResultEnvelope{Value: value}
	}

	switch call.Module + ":" + call.Function {
	case "os:getpid":
		return ResultEnvelope{Value: fmt.Sprintf("%d", s.cfg.Pid)}
	case "net_adm:ping":
		return ResultEnvelope{Value: "pong"}
	case "init:stop", "init:restart", "init:reboot":
		return ResultEnvelope{Value: "ok"}
	default:
		return ResultEnvelope{Error: fmt.Sprintf("undefined function %s:%s", call.Module, call.Function)}
	}
}

func (s *Server) authorized(presented []byte) bool {
	return auth.Cookie(s.cfg.Cookie).Validate(presented) == nil
}

func (s *Server) ack(conn net.Conn, ack protocol.HelloAck) bool {
	frame, err := protocol.EncodeHelloAckFrame(s.nextMessageID.Add(1), ack)
	if err != nil {
		return false
	}
	return s.writeFrame(conn, frame)
}

func (s *Server) sendResult(conn net.Conn, res protocol.Result) {
	frame, err := protocol.EncodeResultFrame(s.nextMessageID.Add(1), res)
	if err != nil {
		return
	}
	s.writeFrame(conn, frame)
}

func (s *Server) writeFrame(conn net.Conn, frame []byte) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_, err := conn.Write(frame)
	return err == nil
}

// frameSink streams evaluator output to the caller as output frames.
// Format requests ship unrendered; the caller's capture listener
// performs the format computation.
type frameSink struct {
	srv    *Server
	conn   net.Conn
	callID string
}

func (f *frameSink) PutChars(text string) error {
	frame, err := protocol.EncodeOutputFrame(f.srv.nextMessageID.Add(1), protocol.Output{
		CallID: f.callID,
		Kind:   protocol.OutputPutChars,
		Text:   text,
	})
	if err != nil {
		return err
	}
	if !f.srv.writeFrame(f.conn, frame) {
		return fmt.Errorf("fabric: write output frame")
	}
	return nil
}

func (f *frameSink) Format(format string, args []any) error {
	var encoded []byte
	if len(args) > 0 {
		var err error
		encoded, err = json.Marshal(args)
		if err != nil {
			return err
		}
	}
	frame, err := protocol.EncodeOutputFrame(f.srv.nextMessageID.Add(1), protocol.Output{
		CallID:     f.callID,
		Kind:       protocol.OutputFormat,
		Text:       format,
		FormatArgs: encoded,
	})
	if err != nil {
		return err
	}
	if !f.srv.writeFrame(f.conn, frame) {
		return fmt.Errorf("fabric: write output frame")
	}
	return nil
}
