package web

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iphone-alarms-sync/internal/adapter/secondary/repository"
	"iphone-alarms-sync/internal/usecase"
)

// Wednesday 2025-01-15 08:00 at UTC+2.
var (
	testLoc = time.FixedZone("UTC+2", 2*60*60)
	testNow = time.Date(2025, 1, 15, 8, 0, 0, 0, testLoc)
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now.UTC() }

type testEnv struct {
	srv   *httptest.Server
	coord usecase.Coordinator
	hub   *Hub
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	store, err := repository.NewFileStore(t.TempDir())
	require.NoError(t, err)
	hub := NewHub()
	coord, err := usecase.NewCoordinator(context.Background(), "entry-1", store,
		usecase.WithClock(fixedClock{testNow}),
		usecase.WithLocation(testLoc),
		usecase.WithPublisher(hub),
	)
	require.NoError(t, err)

	server := NewServer(coord, hub, opts)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{srv: ts, coord: coord, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) setup(t *testing.T) {
	t.Helper()
	status, body := e.do(t, http.MethodPost, "/api/phone", `{"phone_name":"Jane's iPhone","keep_disabled_alarms":false}`)
	require.Equal(t, http.StatusCreated, status, string(body))
}

const syncBody = `{"phone_id":"janes_iphone","alarms":[
	{"alarm_id":"A1","label":"Gym","enabled":true,"hour":9,"minute":0,"repeats":false,"repeat_days":[],"allows_snooze":true},
	{"alarm_id":"A2","label":"Weekend","enabled":true,"hour":6,"minute":30,"repeats":true,"repeat_days":["Saturday"],"allows_snooze":false}
]}`

func TestServer_PhoneLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})

	status, body := env.do(t, http.MethodGet, "/api/phone", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `false`, string(mustField(t, body, "loaded")))

	status, _ = env.do(t, http.MethodPut, "/api/phone", `{"phone_name":"x"}`)
	assert.Equal(t, http.StatusConflict, status)

	env.setup(t)
	status, _ = env.do(t, http.MethodPost, "/api/phone", `{"phone_name":"again"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, body = env.do(t, http.MethodPut, "/api/phone", `{"phone_name":"Work"}`)
	require.Equal(t, http.StatusOK, status)
	var view PhoneView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "janes_iphone", view.ID)
	assert.Equal(t, "Work", view.Name)
	assert.False(t, view.KeepDisabledAlarms)

	status, _ = env.do(t, http.MethodDelete, "/api/phone", "")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Nil(t, env.coord.Phone())

	status, _ = env.do(t, http.MethodPatch, "/api/phone", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestServer_SyncAndRead(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setup(t)

	status, body := env.do(t, http.MethodPost, "/api/sync", syncBody)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.JSONEq(t, `{"new_ids":["A1","A2"],"removed_ids":[],"changed":true}`, string(body))

	status, body = env.do(t, http.MethodGet, "/api/alarms", "")
	require.Equal(t, http.StatusOK, status)
	var alarms []AlarmView
	require.NoError(t, json.Unmarshal(body, &alarms))
	require.Len(t, alarms, 2)
	assert.Equal(t, "A2", alarms[0].ID, "ordered by time of day")
	assert.True(t, alarms[0].RepeatsOn["saturday"])
	assert.False(t, alarms[0].RepeatsOn["monday"])
	require.NotNil(t, alarms[1].NextOccurrence)
	assert.Equal(t, time.Date(2025, 1, 15, 7, 0, 0, 0, time.UTC), alarms[1].NextOccurrence.UTC())

	status, body = env.do(t, http.MethodGet, "/api/phone", "")
	require.Equal(t, http.StatusOK, status)
	var view PhoneView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, 2, view.TotalAlarms)
	require.NotNil(t, view.NextAlarm)
	assert.Equal(t, "A1", view.NextAlarm.AlarmID)
	assert.Equal(t, "Gym", view.NextAlarm.Label)

	status, body = env.do(t, http.MethodGet, "/api/next", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"alarm_id":"A1"`)

	status, _ = env.do(t, http.MethodGet, "/api/alarms/NOPE", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_SyncErrors(t *testing.T) {
	env := newTestEnv(t, Options{})

	status, _ := env.do(t, http.MethodPost, "/api/sync", syncBody)
	assert.Equal(t, http.StatusConflict, status)

	env.setup(t)
	status, _ = env.do(t, http.MethodPost, "/api/sync", `{"phone_id":"other","alarms":[]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/sync", `{"alarms":[{"alarm_id":"A1","hour":25}]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPost, "/api/sync", `{not json`)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_PatchAndDeleteAlarm(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setup(t)
	status, _ := env.do(t, http.MethodPost, "/api/sync", syncBody)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPatch, "/api/alarms/A1", `{"label":"Run","icon":"mdi:run","snooze_time":12}`)
	require.Equal(t, http.StatusOK, status, string(body))
	var view AlarmView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "Run", view.Label)
	assert.Equal(t, "mdi:run", view.Icon)
	assert.Equal(t, 12, view.SnoozeTime)

	status, _ = env.do(t, http.MethodPatch, "/api/alarms/A1", `{"snooze_time":45}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodPatch, "/api/alarms/A2", `{"snooze_time":5}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPatch, "/api/alarms/A1", `{"label":"Swim","snooze_time":99}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodPatch, "/api/alarms/ZZ", `{"label":"Swim","snooze_time":5}`)
	assert.Equal(t, http.StatusNotFound, status)
	a, ok := env.coord.Alarm("A1")
	require.True(t, ok)
	assert.Equal(t, "Run", a.Label)
	assert.Equal(t, 12, a.SnoozeTime)

	status, _ = env.do(t, http.MethodDelete, "/api/alarms/A2", "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = env.do(t, http.MethodDelete, "/api/alarms/A2", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Events(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setup(t)
	status, _ := env.do(t, http.MethodPost, "/api/sync", syncBody)
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, http.MethodPost, "/api/alarms/A1/events", `{"event":"goes_off"}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	status, _ = env.do(t, http.MethodPost, "/api/alarms/A1/events", `{"event":"stopped"}`)
	require.Equal(t, http.StatusCreated, status)
	status, _ = env.do(t, http.MethodPost, "/api/device-events", `{"event":"wind_down_starts"}`)
	require.Equal(t, http.StatusCreated, status)

	status, _ = env.do(t, http.MethodPost, "/api/alarms/A1/events", `{"event":"melted"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	status, _ = env.do(t, http.MethodPost, "/api/alarms/ZZ/events", `{"event":"goes_off"}`)
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = env.do(t, http.MethodPost, "/api/device-events", `{"event":"nap"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/api/events?alarm_id=A1&limit=1", "")
	require.Equal(t, http.StatusOK, status)
	var events []EventView
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	assert.Equal(t, "stopped", string(events[0].Event))

	status, body = env.do(t, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &events))
	assert.Len(t, events, 3)
	assert.Equal(t, "wind_down", events[2].AlarmID)

	status, _ = env.do(t, http.MethodGet, "/api/events?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_ShortcutQR(t *testing.T) {
	env := newTestEnv(t, Options{PublicURL: "https://ha.example.com/"})

	status, _ := env.do(t, http.MethodGet, "/api/shortcut/qr", "")
	assert.Equal(t, http.StatusConflict, status)

	env.setup(t)
	status, body := env.do(t, http.MethodGet, "/api/shortcut/qr?size=128", "")
	require.Equal(t, http.StatusOK, status)
	img, err := png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())

	for _, size := range []string{"100000", "-5", "10", "huge"} {
		status, _ = env.do(t, http.MethodGet, "/api/shortcut/qr?size="+size, "")
		assert.Equal(t, http.StatusBadRequest, status, size)
	}

	status, body = env.do(t, http.MethodGet, "/api/shortcut/qr", "")
	require.Equal(t, http.StatusOK, status)
	img, err = png.Decode(bytes.NewReader(body))
	require.NoError(t, err)
	assert.Equal(t, DefaultQRSize, img.Bounds().Dx())
}

func TestShortcutQR_SizeBounds(t *testing.T) {
	_, err := ShortcutQR("https://ha.example.com", MaxQRSize+1)
	assert.ErrorIs(t, err, ErrInvalidQRSize)
	_, err = ShortcutQR("https://ha.example.com", MinQRSize-1)
	assert.ErrorIs(t, err, ErrInvalidQRSize)
	out, err := ShortcutQR("https://ha.example.com", MaxQRSize)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestShortcutURL(t *testing.T) {
	assert.Equal(t, "https://ha.example.com/api/sync?phone_id=janes_iphone",
		ShortcutURL("https://ha.example.com/", "janes_iphone"))
}

func TestServer_WebsocketPush(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.setup(t)
	status, _ := env.do(t, http.MethodPost, "/api/sync", syncBody)
	require.Equal(t, http.StatusOK, status)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readEnvelope(t, conn)
	assert.Equal(t, MsgStateInit, first.Type)

	status, _ = env.do(t, http.MethodPost, "/api/alarms/A1/events", `{"event":"snoozed"}`)
	require.Equal(t, http.StatusCreated, status)

	seen := map[string]json.RawMessage{}
	for len(seen) < 2 {
		msg := readEnvelope(t, conn)
		seen[msg.Type] = msg.Data
	}
	require.Contains(t, seen, MsgStateChanged)
	require.Contains(t, seen, MsgAlarmEvent)
	assert.Contains(t, string(seen[MsgAlarmEvent]), `"event":"snoozed"`)
	assert.Contains(t, string(seen[MsgAlarmEvent]), `"phone_id":"janes_iphone"`)
}

type rawEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readEnvelope(t *testing.T, conn *websocket.Conn) rawEnvelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg rawEnvelope
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func mustField(t *testing.T, body []byte, field string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &m))
	v, ok := m[field]
	require.True(t, ok, "missing field %s in %s", field, body)
	return v
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
