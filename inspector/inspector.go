// Package inspector streams the frame reports of an engine to WebSocket
// clients.
package inspector

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/adam-ce/cesium/quadtree"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// The number of reports buffered for a client before reports are dropped.
	frameChanSize = 32

	FormatJSON  = "json"
	FormatProto = "proto"
)

// Server fans published frame reports out to the connected clients.
type Server struct {
	// The name reported in metrics.
	Name string

	mutex   sync.Mutex
	clients map[*client]struct{}
	dropped int
}

type client struct {
	id     string
	format string
	frames chan frame
}

type frame struct {
	text   string
	binary []byte
}

// Handler returns the WebSocket handler that registers clients. Clients pick
// the encoding with the format query parameter.
func (s *Server) Handler() websocket.Server {
	return websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: s.handleConn,
	}
}

// Len returns the number of connected clients.
func (s *Server) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return len(s.clients)
}

// Dropped returns the number of reports dropped because a client was too slow.
func (s *Server) Dropped() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.dropped
}

// Publish sends stats to every connected client without blocking.
func (s *Server) Publish(stats quadtree.FrameStats) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.clients) == 0 {
		return
	}

	encoded := make(map[string]frame, 2)
	for c := range s.clients {
		f, ok := encoded[c.format]
		if !ok {
			var err error
			if f, err = encodeFrame(c.format, stats); err != nil {
				logs.WithTag("format", c.format).
					WithTag("frame", stats.Frame).
					Warn(err)
				return
			}
			encoded[c.format] = f
		}

		select {
		case c.frames <- f:
			instrumentPublishedFrame(s.Name, c.format)

		default:
			s.dropped++
			instrumentDroppedFrame(s.Name, c.format)
			logs.WithTag("client_id", c.id).
				WithTag("frame", stats.Frame).
				Debug("inspector frame dropped")
		}
	}
}

func (s *Server) handleConn(conn *websocket.Conn) {
	defer conn.Close()

	format := FormatJSON
	if conn.Request().URL.Query().Get("format") == FormatProto {
		format = FormatProto
	}

	c := &client{
		id:     uuid.NewString(),
		format: format,
		frames: make(chan frame, frameChanSize),
	}
	s.add(c)
	defer s.remove(c)

	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()

	go func() {
		defer cancel()
		io.Copy(io.Discard, conn)
	}()

	logs.WithTag("client_id", c.id).
		WithTag("format", c.format).
		Info("inspector client connected")

	err := c.send(ctx, conn)
	if err != nil {
		logs.WithTag("client_id", c.id).Debug(err)
	}

	logs.WithTag("client_id", c.id).Info("inspector client disconnected")
}

func (s *Server) add(c *client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.clients == nil {
		s.clients = make(map[*client]struct{})
	}
	s.clients[c] = struct{}{}
	instrumentClients(s.Name, len(s.clients))
}

func (s *Server) remove(c *client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.clients, c)
	instrumentClients(s.Name, len(s.clients))
}

func (c *client) send(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case f := <-c.frames:
			var err error
			if f.binary != nil {
				err = websocket.Message.Send(conn, f.binary)
			} else {
				err = websocket.Message.Send(conn, f.text)
			}

			if err != nil {
				return errors.New("sending inspector frame failed").
					WithTag("client_id", c.id).
					Wrap(err)
			}
		}
	}
}

func encodeFrame(format string, stats quadtree.FrameStats) (frame, error) {
	b, err := json.Marshal(stats)
	if err != nil {
		return frame{}, errors.New("encoding frame stats failed").Wrap(err)
	}

	if format != FormatProto {
		return frame{text: string(b)}, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return frame{}, errors.New("decoding frame stats failed").Wrap(err)
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return frame{}, errors.New("converting frame stats failed").Wrap(err)
	}

	if b, err = proto.Marshal(msg); err != nil {
		return frame{}, errors.New("encoding frame stats failed").
			WithTag("format", format).
			Wrap(err)
	}
	return frame{binary: b}, nil
}
