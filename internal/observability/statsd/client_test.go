package statsd

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// udpSink collects StatsD lines received over a loopback UDP socket.
type udpSink struct {
	conn  *net.UDPConn
	lines chan string
}

func newUDPSink(t *testing.T) *udpSink {
	t.Helper()

	addr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	conn, err := net.ListenUDP("udp", addr)
	require.NoError(t, err)

	sink := &udpSink{conn: conn, lines: make(chan string, 16)}
	go func() {
		buf := make([]byte, 1024)
		for {
			n, _, readErr := conn.ReadFromUDP(buf)
			if readErr != nil {
				return
			}
			sink.lines <- string(buf[:n])
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return sink
}

func (s *udpSink) addr() string {
	return s.conn.LocalAddr().String()
}

func (s *udpSink) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-s.lines:
		return line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for statsd line")
		return ""
	}
}

func newEnabledClient(t *testing.T, sink *udpSink, prefix string, globalTags map[string]string) *Client {
	t.Helper()

	client, err := NewClient(Config{
		Enabled:    true,
		Address:    sink.addr(),
		Prefix:     prefix,
		GlobalTags: globalTags,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestClient_Count(t *testing.T) {
	sink := newUDPSink(t)
	client := newEnabledClient(t, sink, "gistseek", nil)

	client.Count("search.transition", 1, map[string]string{"result": "success"})

	assert.Equal(t, "gistseek.search.transition:1|c|#result:success", sink.next(t))
}

func TestClient_Gauge(t *testing.T) {
	sink := newUDPSink(t)
	client := newEnabledClient(t, sink, "gistseek", nil)

	client.Gauge("search.matches", 3, nil)

	assert.Equal(t, "gistseek.search.matches:3|g", sink.next(t))
}

func TestClient_Timing(t *testing.T) {
	sink := newUDPSink(t)
	client := newEnabledClient(t, sink, "gistseek", nil)

	client.Timing("search.duration", 1500*time.Millisecond, nil)

	assert.Equal(t, "gistseek.search.duration:1500|ms", sink.next(t))
}

func TestClient_TagsAreMergedAndSorted(t *testing.T) {
	sink := newUDPSink(t)
	client := newEnabledClient(t, sink, "gistseek", map[string]string{"env": "test"})

	client.Count("search.transition", 1, map[string]string{"result": "error", "a": "b"})

	assert.Equal(t, "gistseek.search.transition:1|c|#a:b,env:test,result:error", sink.next(t))
}

func TestClient_LocalTagsOverrideGlobal(t *testing.T) {
	sink := newUDPSink(t)
	client := newEnabledClient(t, sink, "", map[string]string{"env": "test"})

	client.Count("hits", 2, map[string]string{"env": "prod"})

	assert.Equal(t, "hits:2|c|#env:prod", sink.next(t))
}

func TestClient_NormalizesMetricNames(t *testing.T) {
	sink := newUDPSink(t)
	client := newEnabledClient(t, sink, "gistseek.", nil)

	client.Count(" search/jobs..total ", 1, nil)

	assert.Equal(t, "gistseek.search_jobs.total:1|c", sink.next(t))
}

func TestClient_DisabledIsNoop(t *testing.T) {
	client, err := NewClient(Config{Enabled: false, Address: "127.0.0.1:1"})
	require.NoError(t, err)
	assert.False(t, client.Enabled())

	// None of these may panic or attempt network I/O.
	client.Count("x", 1, nil)
	client.Gauge("x", 1, nil)
	client.Timing("x", time.Second, nil)
	assert.NoError(t, client.Close())
}

func TestClient_NilIsNoop(t *testing.T) {
	var client *Client
	assert.False(t, client.Enabled())
	client.Count("x", 1, nil)
	client.Gauge("x", 1, nil)
	client.Timing("x", time.Second, nil)
	assert.NoError(t, client.Close())
}

func TestClient_EmptyAddressDisables(t *testing.T) {
	client, err := NewClient(Config{Enabled: true, Address: "  "})
	require.NoError(t, err)
	assert.False(t, client.Enabled())
}
