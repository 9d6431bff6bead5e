package inspector

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adam-ce/cesium/models"
	"github.com/adam-ce/cesium/quadtree"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestServer(t *testing.T) {
	stats := quadtree.FrameStats{
		Engine:        "test",
		Frame:         42,
		TilesSelected: 2,
		TilesRendered: 2,
		Selected: []models.TileID{
			{Level: 1, X: 0, Y: 0},
			{Level: 1, X: 1, Y: 0},
		},
	}

	t.Run("json", func(t *testing.T) {
		s := &Server{Name: "test"}
		conn, close := newTestConn(t, s, "")
		defer close()

		s.Publish(stats)

		var msg string
		require.NoError(t, websocket.Message.Receive(conn, &msg))

		var received quadtree.FrameStats
		require.NoError(t, json.Unmarshal([]byte(msg), &received))
		require.Equal(t, stats.Frame, received.Frame)
		require.Equal(t, stats.Selected, received.Selected)
	})

	t.Run("proto", func(t *testing.T) {
		s := &Server{Name: "test"}
		conn, close := newTestConn(t, s, "?format=proto")
		defer close()

		s.Publish(stats)

		var msg []byte
		require.NoError(t, websocket.Message.Receive(conn, &msg))

		var received structpb.Struct
		require.NoError(t, proto.Unmarshal(msg, &received))
		require.Equal(t, float64(42), received.Fields["frame"].GetNumberValue())
		require.Equal(t, "test", received.Fields["engine"].GetStringValue())
		require.Len(t, received.Fields["selected"].GetListValue().GetValues(), 2)
	})

	t.Run("disconnect", func(t *testing.T) {
		s := &Server{Name: "test"}
		_, close := newTestConn(t, s, "")
		close()

		require.Eventually(t, func() bool {
			return s.Len() == 0
		}, time.Second*5, time.Millisecond*10)
	})

	t.Run("slow client drops frames", func(t *testing.T) {
		s := &Server{Name: "test"}
		c := &client{
			id:     "slow",
			format: FormatJSON,
			frames: make(chan frame, frameChanSize),
		}
		s.add(c)

		for i := 0; i < frameChanSize+3; i++ {
			stats.Frame = uint64(i)
			s.Publish(stats)
		}

		require.Len(t, c.frames, frameChanSize)
		require.Equal(t, 3, s.Dropped())

		s.remove(c)
		require.Zero(t, s.Len())
	})

	t.Run("publish without clients", func(t *testing.T) {
		s := &Server{}
		s.Publish(stats)
		require.Zero(t, s.Dropped())
	})
}

func newTestConn(t *testing.T, s *Server, query string) (*websocket.Conn, func()) {
	server := httptest.NewServer(s.Handler())

	conn, err := websocket.Dial(
		strings.ReplaceAll(server.URL, "http://", "ws://")+"/"+query,
		"",
		"http://localhost",
	)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Len() == 1
	}, time.Second*5, time.Millisecond*10)

	return conn, func() {
		conn.Close()
		server.Close()
	}
}
