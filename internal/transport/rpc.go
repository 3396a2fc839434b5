package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"sync"

	"github.com/senutpal/synod/internal/paxos"
)

// Envelope is the net/rpc argument and reply type. Payload holds a message
// in Codec form; an empty Payload is a nil message.
type Envelope struct {
	From    string
	Payload []byte
}

// Service is the receiver registered with net/rpc as "Paxos".
type Service struct {
	handler Handler
}

func (s *Service) Deliver(args *Envelope, reply *Envelope) error {
	msg, err := Decode(args.Payload)
	if err != nil {
		return err
	}
	if msg == nil {
		return errors.New("empty request")
	}
	out, err := Encode(s.handler.Receive(paxos.NodeID(args.From), msg))
	if err != nil {
		return err
	}
	reply.Payload = out
	return nil
}

// RPCServer serves one node's Handler over TCP.
type RPCServer struct {
	server   *rpc.Server
	listener net.Listener

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	dead  bool
	wg    sync.WaitGroup
}

// NewRPCServer listens on addr (use "127.0.0.1:0" for any free port) and
// serves h until Close.
func NewRPCServer(addr string, h Handler) (*RPCServer, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("Paxos", &Service{handler: h}); err != nil {
		return nil, err
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	s := &RPCServer{
		server:   server,
		listener: l,
		conns:    make(map[net.Conn]struct{}),
	}
	s.wg.Add(1)
	go s.accept()
	return s, nil
}

// Addr is the address the server is listening on.
func (s *RPCServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *RPCServer) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			dead := s.dead
			s.mu.Unlock()
			if !dead {
				log.Printf("rpc accept on %s: %v", s.Addr(), err)
			}
			return
		}
		s.mu.Lock()
		if s.dead {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.server.ServeConn(conn)
			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}
}

// Close stops accepting connections, drops the open ones and waits for
// in-flight handlers to return.
func (s *RPCServer) Close() error {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return nil
	}
	s.dead = true
	err := s.listener.Close()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// RPCRouter sends messages to RPCServers. It dials a fresh connection per
// call, so a restarted peer is picked up without any reconnect logic.
type RPCRouter struct {
	from   paxos.NodeID
	dialer net.Dialer

	mu    sync.RWMutex
	addrs map[paxos.NodeID]string
}

func NewRPCRouter(from paxos.NodeID, addrs map[paxos.NodeID]string) *RPCRouter {
	r := &RPCRouter{from: from, addrs: make(map[paxos.NodeID]string, len(addrs))}
	for id, addr := range addrs {
		r.addrs[id] = addr
	}
	return r
}

// SetAddr points id at addr.
func (r *RPCRouter) SetAddr(id paxos.NodeID, addr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addrs[id] = addr
}

func (r *RPCRouter) Send(ctx context.Context, to paxos.NodeID, msg paxos.Message) (paxos.Message, error) {
	r.mu.RLock()
	addr, ok := r.addrs[to]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}
	payload, err := Encode(msg)
	if err != nil {
		return nil, err
	}

	conn, err := r.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnreachable, to, err)
	}
	client := rpc.NewClient(conn)
	defer client.Close()

	var reply Envelope
	call := client.Go("Paxos.Deliver", &Envelope{From: string(r.from), Payload: payload}, &reply, make(chan *rpc.Call, 1))
	select {
	case <-call.Done:
		if call.Error != nil {
			return nil, fmt.Errorf("deliver %s to %s: %w", msg.Kind(), to, call.Error)
		}
		return Decode(reply.Payload)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
