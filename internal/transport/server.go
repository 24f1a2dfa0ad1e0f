package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ChunkSize is the largest inbound delivery; one chunk is treated as one
// logical line by the handler.
const ChunkSize = 2048

// Handler receives connection lifecycle events and inbound chunks. Calls
// for one client are ordered: OnConnect precedes every OnMessage, and
// OnDisconnect follows them. OnConnect returning false refuses the
// connection; the socket is closed and OnDisconnect is not called.
type Handler interface {
	OnConnect(id uint64, addr string) bool
	OnMessage(id uint64, chunk []byte)
	OnDisconnect(id uint64)
}

// Config carries the transport's tunables.
type Config struct {
	Port         int
	Workers      int
	WriteTimeout time.Duration
}

type peer struct {
	id   uint64
	conn Conn
	addr string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    atomic.Bool
}

// Server owns the TCP accept loop, the per-connection reader goroutines,
// and the worker pool that serializes handler calls per client. Each
// reader submits one chunk at a time and waits for it to be handled, so a
// client's chunks never overlap.
type Server struct {
	cfg     Config
	logger  zerolog.Logger
	handler Handler
	pool    *Pool

	ln       net.Listener
	stopOnce sync.Once
	stopped  atomic.Bool
	wg       sync.WaitGroup

	mu     sync.Mutex
	nextID uint64
	peers  map[uint64]*peer
}

func NewServer(cfg Config, handler Handler, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		logger:  logger,
		handler: handler,
		pool:    NewPool(cfg.Workers, logger),
		peers:   make(map[uint64]*peer),
	}
}

// Start binds the listening socket and launches the accept loop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("bind port %d: %w", s.cfg.Port, err)
	}
	s.ln = ln
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("chat server listening")

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr returns the bound listen address, empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes the listener, closes every client socket, lets queued work
// drain, and joins all goroutines. Queued disconnect notifications run
// before Stop returns.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		if s.ln != nil {
			_ = s.ln.Close()
		}

		s.mu.Lock()
		peers := make([]*peer, 0, len(s.peers))
		for _, p := range s.peers {
			peers = append(peers, p)
		}
		s.mu.Unlock()

		for _, p := range peers {
			s.closePeer(p, true)
		}
		s.wg.Wait()
		s.pool.Stop()
		s.logger.Info().Msg("chat server stopped")
	})
}

// Attach registers a connection and starts reading from it. It returns
// the assigned client ID, or 0 when the server is stopping. IDs are never
// reused.
func (s *Server) Attach(conn Conn) uint64 {
	s.mu.Lock()
	// Checked under the table lock so a racing Stop either sees this
	// peer in its snapshot or this call sees stopped.
	if s.stopped.Load() {
		s.mu.Unlock()
		_ = conn.Close()
		return 0
	}
	s.nextID++
	p := &peer{id: s.nextID, conn: conn, addr: conn.RemoteAddr()}
	s.peers[p.id] = p
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.servePeer(p)
	}()
	return p.id
}

// Send writes data to one client, bounded by the write timeout. A failed
// or timed-out write closes that client. It reports whether the write
// succeeded.
func (s *Server) Send(id uint64, data []byte) bool {
	s.mu.Lock()
	p := s.peers[id]
	s.mu.Unlock()
	if p == nil || p.closed.Load() {
		return false
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if s.cfg.WriteTimeout > 0 {
		_ = p.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}
	if _, err := p.conn.Write(data); err != nil {
		s.logger.Debug().Uint64("client", id).Err(err).Msg("write failed, closing client")
		s.closePeer(p, true)
		return false
	}
	return true
}

// Broadcast sends data to every attached client except exclude and
// returns the delivery count. Zero excludes nobody.
func (s *Server) Broadcast(data []byte, exclude uint64) int {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.peers))
	for id := range s.peers {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	delivered := 0
	for _, id := range ids {
		if id == exclude {
			continue
		}
		if s.Send(id, data) {
			delivered++
		}
	}
	return delivered
}

// Disconnect closes one client. The handler's OnDisconnect fires exactly
// once no matter how often this races the reader.
func (s *Server) Disconnect(id uint64) {
	s.mu.Lock()
	p := s.peers[id]
	s.mu.Unlock()
	if p != nil {
		s.closePeer(p, true)
	}
}

// Count returns the number of attached clients.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

// PoolStats exposes worker activity for the ops API.
func (s *Server) PoolStats() PoolStats {
	return s.pool.Stats()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if s.stopped.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		s.Attach(NewConn(conn))
	}
}

// servePeer runs the connection's read loop. Each chunk is submitted as
// one task and the loop waits for it, which keeps per-client handling
// sequential even with many workers.
func (s *Server) servePeer(p *peer) {
	admitted := false
	s.runTask(func() {
		if p.closed.Load() {
			return
		}
		admitted = s.handler.OnConnect(p.id, p.addr)
	})
	if !admitted {
		s.closePeer(p, false)
		return
	}

	buf := make([]byte, ChunkSize)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.runTask(func() {
				if p.closed.Load() {
					return
				}
				s.handler.OnMessage(p.id, chunk)
			})
		}
		if err != nil {
			break
		}
	}
	s.closePeer(p, true)
}

// runTask submits fn to the pool and waits for it to finish. During
// shutdown the submit may be refused; the task is then skipped.
func (s *Server) runTask(fn func()) {
	done := make(chan struct{})
	ok := s.pool.Submit(func() {
		defer close(done)
		fn()
	})
	if !ok {
		return
	}
	<-done
}

// closePeer removes the peer from the table, closes its socket, and, when
// notify is set, queues the handler's OnDisconnect. The sync.Once makes
// cleanup exactly-once across reader exit, Send failure, Disconnect, and
// Stop.
func (s *Server) closePeer(p *peer, notify bool) {
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		s.mu.Lock()
		delete(s.peers, p.id)
		s.mu.Unlock()

		_ = p.conn.Close()
		if notify {
			s.pool.Submit(func() { s.handler.OnDisconnect(p.id) })
		}
	})
}
