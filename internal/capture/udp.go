package capture

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// IngestConfig contains UDP ingest configuration.
type IngestConfig struct {
	BindAddress string
	Port        int
	BufferSize  int // socket read buffer, bytes
	QueueDepth  int // per-session frame queue depth
	Workers     int // packet processor goroutines
}

// IngestStats is a snapshot of ingest counters.
type IngestStats struct {
	PacketsReceived uint64 `json:"packets_received"`
	PacketsRouted   uint64 `json:"packets_routed"`
	ParseErrors     uint64 `json:"parse_errors"`
	UnknownSession  uint64 `json:"unknown_session"`
	ChannelMismatch uint64 `json:"channel_mismatch"`
	OpenSessions    int    `json:"open_sessions"`
}

// Ingest is a shared UDP listener that parses audio frame packets and
// routes each to the push queue of the session named in its header.
// Frames for sessions without an open source are dropped.
type Ingest struct {
	cfg    IngestConfig
	logger *slog.Logger

	conn *net.UDPConn

	ctx    context.Context
	cancel context.CancelFunc
	recvWG sync.WaitGroup
	procWG sync.WaitGroup

	packetChan chan []byte

	mu     sync.RWMutex
	queues map[string]*PushSource

	statsMu         sync.RWMutex
	packetsReceived uint64
	packetsRouted   uint64
	parseErrors     uint64
	unknownSession  uint64
	channelMismatch uint64
}

// NewIngest creates a UDP frame ingest.
func NewIngest(cfg IngestConfig, logger *slog.Logger) *Ingest {
	if cfg.BufferSize < 1024 {
		cfg.BufferSize = 65536
	}

	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 64
	}

	if cfg.Workers < 1 {
		cfg.Workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Ingest{
		cfg:        cfg,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		packetChan: make(chan []byte, 1000),
		queues:     make(map[string]*PushSource),
	}
}

// Start begins listening for frame packets.
func (i *Ingest) Start() error {
	addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", i.cfg.BindAddress, i.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	i.conn = conn

	if err := i.conn.SetReadBuffer(i.cfg.BufferSize); err != nil {
		i.logger.Warn("Failed to set UDP read buffer size",
			slog.Int("buffer_size", i.cfg.BufferSize),
			slog.String("error", err.Error()),
		)
	}

	i.logger.Info("UDP frame ingest started",
		slog.String("address", addr.String()),
		slog.Int("buffer_size", i.cfg.BufferSize),
	)

	for w := 0; w < i.cfg.Workers; w++ {
		i.procWG.Add(1)
		go i.packetProcessor(w)
	}

	i.recvWG.Add(1)
	go i.receiveLoop()

	return nil
}

// Stop shuts the listener down and waits for in-flight packets. The
// receiver must exit before the packet channel closes, so processors see
// every packet that made it off the socket.
func (i *Ingest) Stop() error {
	i.logger.Info("Stopping UDP frame ingest...")

	i.cancel()

	if i.conn != nil {
		if err := i.conn.Close(); err != nil {
			i.logger.Warn("Error closing UDP connection", slog.String("error", err.Error()))
		}
	}

	i.recvWG.Wait()
	close(i.packetChan)
	i.procWG.Wait()

	return nil
}

// LocalAddr returns the bound UDP address, or nil before Start.
func (i *Ingest) LocalAddr() net.Addr {
	if i.conn == nil {
		return nil
	}

	return i.conn.LocalAddr()
}

// Open registers a frame queue for a session and returns it as the
// session's capture source. A session may hold at most one open source.
func (i *Ingest) Open(sessionID string, channels int) (Source, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id cannot be empty")
	}

	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("channels must be 1..%d, got %d", MaxChannels, channels)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if _, exists := i.queues[sessionID]; exists {
		return nil, fmt.Errorf("capture source for session %q already open", sessionID)
	}

	q := NewPushSource(channels, i.cfg.QueueDepth)
	i.queues[sessionID] = q

	i.logger.Debug("Capture source opened",
		slog.String("session_id", sessionID),
		slog.Int("channels", channels),
	)

	return &ingestSource{PushSource: q, ingest: i, sessionID: sessionID}, nil
}

// receiveLoop reads raw datagrams off the socket.
func (i *Ingest) receiveLoop() {
	defer i.recvWG.Done()

	buf := make([]byte, i.cfg.BufferSize)
	for {
		select {
		case <-i.ctx.Done():
			return
		default:
		}

		i.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, _, err := i.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}

			select {
			case <-i.ctx.Done():
				return
			default:
				i.logger.Warn("UDP read error", slog.String("error", err.Error()))
				continue
			}
		}

		i.statsMu.Lock()
		i.packetsReceived++
		i.statsMu.Unlock()

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case i.packetChan <- data:
		default:
			// Processing backlog; drop on the floor rather than block the socket.
			i.logger.Warn("Packet queue full, dropping frame")
		}
	}
}

// packetProcessor parses packets and routes frames to session queues.
func (i *Ingest) packetProcessor(worker int) {
	defer i.procWG.Done()

	for data := range i.packetChan {
		pkt, err := ParseFramePacket(data)
		if err != nil {
			i.statsMu.Lock()
			i.parseErrors++
			i.statsMu.Unlock()

			i.logger.Debug("Dropping malformed frame packet",
				slog.Int("worker", worker),
				slog.String("error", err.Error()),
			)
			continue
		}

		i.mu.RLock()
		q, exists := i.queues[pkt.SessionID]
		i.mu.RUnlock()

		if !exists {
			i.statsMu.Lock()
			i.unknownSession++
			i.statsMu.Unlock()
			continue
		}

		if pkt.Channels != q.Channels() {
			i.statsMu.Lock()
			i.channelMismatch++
			i.statsMu.Unlock()

			i.logger.Warn("Frame channel count does not match open source",
				slog.String("session_id", pkt.SessionID),
				slog.Int("frame_channels", pkt.Channels),
				slog.Int("source_channels", q.Channels()),
			)
			continue
		}

		frame := pkt.ToFrame()
		frame.Timestamp = time.Now()
		q.Push(frame)

		i.statsMu.Lock()
		i.packetsRouted++
		i.statsMu.Unlock()
	}
}

// release unregisters a session's queue.
func (i *Ingest) release(sessionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.queues, sessionID)
}

// Statistics returns a snapshot of ingest counters.
func (i *Ingest) Statistics() IngestStats {
	i.statsMu.RLock()
	defer i.statsMu.RUnlock()

	i.mu.RLock()
	open := len(i.queues)
	i.mu.RUnlock()

	return IngestStats{
		PacketsReceived: i.packetsReceived,
		PacketsRouted:   i.packetsRouted,
		ParseErrors:     i.parseErrors,
		UnknownSession:  i.unknownSession,
		ChannelMismatch: i.channelMismatch,
		OpenSessions:    open,
	}
}

// ingestSource wraps a session's push queue so closing it also
// unregisters the session from the ingest router.
type ingestSource struct {
	*PushSource
	ingest    *Ingest
	sessionID string
}

func (s *ingestSource) Close() error {
	s.ingest.release(s.sessionID)
	return s.PushSource.Close()
}
