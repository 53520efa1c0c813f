package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Scrimzay/artillery/internal/netsync"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// LeaderPeer is the name a Link reports for the far end.
const LeaderPeer = "leader"

const sendQueueSize = 256

var ErrLinkClosed = errors.New("link closed")

// Link is a follower's connection to the leader's hub. Every send goes to
// the leader regardless of the addressed peer.
type Link struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	closed bool

	log zerolog.Logger
}

// Dial connects to the leader. Frames are not read until Bind.
func Dial(ctx context.Context, url string, log zerolog.Logger) (*Link, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing leader: %w", err)
	}
	conn.SetReadLimit(maxFrame)
	return &Link{
		conn:   conn,
		sendCh: make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		log:    log.With().Str("component", "link").Logger(),
	}, nil
}

// Bind announces the leader to r and starts the read and write loops.
func (l *Link) Bind(r netsync.Receiver) {
	r.PeerChanged(LeaderPeer, true)
	go l.writeLoop()
	go l.readLoop(r)
}

func (l *Link) writeLoop() {
	for {
		select {
		case <-l.done:
			return

		case data := <-l.sendCh:
			if err := l.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				l.log.Warn().Err(err).Msg("set write deadline")
				l.Close()
				return
			}
			if err := l.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				l.log.Warn().Err(err).Msg("write error")
				l.Close()
				return
			}
		}
	}
}

func (l *Link) readLoop(r netsync.Receiver) {
	defer r.PeerChanged(LeaderPeer, false)
	for {
		msgType, msg, err := l.conn.ReadMessage()
		if err != nil {
			select {
			case <-l.done:
			default:
				l.log.Warn().Err(err).Msg("read error")
				l.Close()
			}
			return
		}
		if msgType == websocket.BinaryMessage {
			r.Receive(LeaderPeer, msg)
		}
	}
}

func (l *Link) SendTo(_ string, data []byte) error {
	return l.Broadcast(data)
}

// Broadcast queues data for the leader; it fails once the link is closed
// or the queue is full.
func (l *Link) Broadcast(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLinkClosed
	}
	select {
	case l.sendCh <- data:
		return nil

	default:
		return fmt.Errorf("send queue full (%d frames)", sendQueueSize)
	}
}

// Close sends a close frame and stops both loops.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	_ = l.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return l.conn.Close()
}
