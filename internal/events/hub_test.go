package events

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derob357/Real-Estate-Deal-Analyzer/internal/models"
)

type fakeSource struct {
	mu           sync.Mutex
	subs         map[string]func(models.Progress)
	unsubscribed []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[string]func(models.Progress))}
}

func (f *fakeSource) SubscribeToProgress(jobID string, fn func(models.Progress)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[jobID] = fn
}

func (f *fakeSource) Unsubscribe(jobID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, jobID)
	f.unsubscribed = append(f.unsubscribed, jobID)
}

func (f *fakeSource) emit(p models.Progress) {
	f.mu.Lock()
	fn := f.subs[p.JobID]
	f.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}

func (f *fakeSource) subscribed(jobID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[jobID]
	return ok
}

func dial(t *testing.T, srv *httptest.Server, jobID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?job=" + jobID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readProgress(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubStreamsProgressToEveryClient(t *testing.T) {
	src := newFakeSource()
	hub := NewHub(src)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeJob(w, r, r.URL.Query().Get("job"))
	}))
	defer srv.Close()

	a := dial(t, srv, "job-1")
	b := dial(t, srv, "job-1")
	require.Eventually(t, func() bool { return hub.ClientCount("job-1") == 2 }, 2*time.Second, 5*time.Millisecond)
	require.True(t, src.subscribed("job-1"))

	src.emit(models.Progress{JobID: "job-1", Progress: 40, Message: "Fetching listings", CurrentStep: "fetch"})
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readProgress(t, conn)
		assert.Equal(t, "progress", msg.Type)
		assert.Equal(t, 40, msg.Data.Progress)
		assert.Equal(t, "fetch", msg.Data.CurrentStep)
	}

	require.NoError(t, a.Close())
	require.Eventually(t, func() bool { return hub.ClientCount("job-1") == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, src.subscribed("job-1"), "remaining client keeps the subscription")

	require.NoError(t, b.Close())
	require.Eventually(t, func() bool { return !src.subscribed("job-1") }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, hub.ClientCount("job-1"))
}

func TestHubIsolatesJobs(t *testing.T) {
	src := newFakeSource()
	hub := NewHub(src)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeJob(w, r, r.URL.Query().Get("job"))
	}))
	defer srv.Close()

	one := dial(t, srv, "job-1")
	defer one.Close()
	two := dial(t, srv, "job-2")
	defer two.Close()
	require.Eventually(t, func() bool {
		return hub.ClientCount("job-1") == 1 && hub.ClientCount("job-2") == 1
	}, 2*time.Second, 5*time.Millisecond)

	src.emit(models.Progress{JobID: "job-2", Progress: 100, Message: "Job completed"})
	msg := readProgress(t, two)
	assert.Equal(t, "job-2", msg.Data.JobID)

	require.NoError(t, one.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err := one.ReadMessage()
	require.Error(t, err, "job-1 client must not see job-2 progress")
}
