package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/Dispatch/internal/core"
)

type stubPresence struct {
	users []core.PresenceDTO
	conns int
}

func (s stubPresence) Snapshot() []core.PresenceDTO { return s.users }
func (s stubPresence) Online() int                  { return len(s.users) }
func (s stubPresence) Connections() int             { return s.conns }

func serve(h gin.HandlerFunc) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	h(c)
	return w
}

func TestOnline(t *testing.T) {
	lat, lng := 1.5, 2.5
	h := &Handlers{Presence: stubPresence{users: []core.PresenceDTO{
		{UserID: "a", Name: "Ann", Lat: &lat, Lng: &lng},
		{UserID: "b", Name: "Bob"},
	}}}

	w := serve(h.Online)
	require.Equal(t, http.StatusOK, w.Code)
	var resp OnlineResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.NotNil(t, resp.Users[0].Lat)
	assert.Equal(t, 1.5, *resp.Users[0].Lat)
	assert.Nil(t, resp.Users[1].Lat)
}

func TestICEServers(t *testing.T) {
	h := &Handlers{ICE: []webrtc.ICEServer{{URLs: []string{"turn:t.example.com:3478"}, Username: "u", Credential: "p"}}}

	w := serve(h.ICEServers)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string][]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body["iceServers"], 1)
	assert.Equal(t, "u", body["iceServers"][0]["username"])
	assert.Equal(t, []any{"turn:t.example.com:3478"}, body["iceServers"][0]["urls"])
}

func TestHealthz(t *testing.T) {
	h := &Handlers{Presence: stubPresence{conns: 3}}
	w := serve(h.Healthz)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connections":3`)

	done := make(chan struct{})
	close(done)
	h.Done = done
	w = serve(h.Healthz)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"stopping"`)
}
