package api_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jaehyun-ko/newsight/internal/models"
	"github.com/jaehyun-ko/newsight/internal/scoring/mockscorer"
	"github.com/jaehyun-ko/newsight/internal/testutil"
)

func TestGetSessionStatusUnknown(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	rr := doJSON(t, router, "GET", "/api/sessions/nonexistent", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}

	rr = doJSON(t, router, "POST", "/api/sessions/nonexistent/stop", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for stopping an unknown session, got %d", rr.Code)
	}
}

func TestStopSession(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	scorer := newGatedScorer()
	useMockScorer(server, scorer)
	router := server.Router()

	datasetID := testutil.SeedDataset(t, server.Store(), "stoppable", 9)
	sessionID := startSession(t, router, "/api/analysis/start",
		map[string]interface{}{"dataset_id": datasetID, "batch_size": 3})

	rr := doJSON(t, router, "POST", "/api/sessions/"+sessionID+"/stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Stop returned %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]interface{}
	decodeBody(t, rr, &resp)
	if resp["stop_requested"] != true {
		t.Errorf("Expected stop_requested true, got %v", resp)
	}

	// A second stop is acknowledged without complaint.
	rr = doJSON(t, router, "POST", "/api/sessions/"+sessionID+"/stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Repeated stop returned %d", rr.Code)
	}

	// Unblock the scorer so the runner can observe the latch.
	close(scorer.release)
	final := waitForStatus(t, router, sessionID, models.StatusStopped)

	session := final["session"].(map[string]interface{})
	current := session["current"].(float64)
	if current > 3 {
		t.Errorf("Expected at most one batch processed after the stop, got %v", current)
	}
	if _, ok := final["final_stats"]; !ok {
		t.Error("Expected partial final stats on a stopped session")
	}

	// Stopping a finished session still acknowledges with its status.
	rr = doJSON(t, router, "POST", "/api/sessions/"+sessionID+"/stop", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Stop after finish returned %d", rr.Code)
	}
	decodeBody(t, rr, &resp)
	if resp["status"] != models.StatusStopped {
		t.Errorf("Expected stopped status in acknowledgement, got %v", resp["status"])
	}
}

func dialSession(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + sessionID
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.ProgressEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev models.ProgressEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	return ev
}

func TestProgressSocketStreamsToTerminal(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	scorer := newGatedScorer()
	useMockScorer(server, scorer)
	router := server.Router()

	ts := httptest.NewServer(router)
	defer ts.Close()

	datasetID := testutil.SeedDataset(t, server.Store(), "streamed", 6)
	sessionID := startSession(t, router, "/api/analysis/start",
		map[string]interface{}{"dataset_id": datasetID, "batch_size": 2})

	conn := dialSession(t, ts, sessionID)

	greeting := readEvent(t, conn)
	if greeting.Type != models.EventConnected {
		t.Fatalf("Expected connected greeting first, got %s", greeting.Type)
	}
	if greeting.Snapshot == nil || greeting.Snapshot.Total != 6 {
		t.Fatalf("Expected a snapshot with total 6, got %+v", greeting.Snapshot)
	}

	close(scorer.release)

	lastCurrent := greeting.Current
	for {
		ev := readEvent(t, conn)
		switch ev.Type {
		case models.EventProgressUpdate:
			if ev.Current <= lastCurrent {
				t.Fatalf("Progress went backwards: %d after %d", ev.Current, lastCurrent)
			}
			if ev.Current > ev.Total {
				t.Fatalf("Current %d exceeds total %d", ev.Current, ev.Total)
			}
			lastCurrent = ev.Current
		case models.EventHeartbeat:
			// Interleaved heartbeats are fine.
		case models.EventCompleted:
			if lastCurrent != 6 {
				t.Errorf("Terminal event before all progress was streamed (saw %d)", lastCurrent)
			}
			if ev.Stats == nil {
				t.Error("Expected final stats on the completion event")
			}
			// The server closes the connection after the terminal event.
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, _, err := conn.ReadMessage(); err == nil {
				t.Error("Expected the connection to close after completion")
			}
			return
		default:
			t.Fatalf("Unexpected event type %s", ev.Type)
		}
	}
}

func TestProgressSocketFanOutIdentical(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	scorer := newGatedScorer()
	useMockScorer(server, scorer)
	router := server.Router()

	ts := httptest.NewServer(router)
	defer ts.Close()

	datasetID := testutil.SeedDataset(t, server.Store(), "fanout", 4)
	sessionID := startSession(t, router, "/api/analysis/start",
		map[string]interface{}{"dataset_id": datasetID, "batch_size": 2})

	connA := dialSession(t, ts, sessionID)
	connB := dialSession(t, ts, sessionID)

	// Reading the greeting proves each observer is attached before any
	// progress flows.
	for _, conn := range []*websocket.Conn{connA, connB} {
		if ev := readEvent(t, conn); ev.Type != models.EventConnected {
			t.Fatalf("Expected connected greeting, got %s", ev.Type)
		}
	}

	close(scorer.release)

	collect := func(conn *websocket.Conn) []int {
		var currents []int
		for {
			ev := readEvent(t, conn)
			switch ev.Type {
			case models.EventProgressUpdate:
				currents = append(currents, ev.Current)
			case models.EventCompleted:
				return currents
			}
		}
	}

	seqA := collect(connA)
	seqB := collect(connB)

	if len(seqA) != len(seqB) {
		t.Fatalf("Observers saw different event counts: %v vs %v", seqA, seqB)
	}
	for i := range seqA {
		if seqA[i] != seqB[i] {
			t.Fatalf("Observers saw different sequences: %v vs %v", seqA, seqB)
		}
	}
}

func TestProgressSocketLateAttachGetsSnapshot(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	useMockScorer(server, mockscorer.New())
	router := server.Router()

	ts := httptest.NewServer(router)
	defer ts.Close()

	datasetID := testutil.SeedDataset(t, server.Store(), "late", 5)
	sessionID := startSession(t, router, "/api/analysis/start",
		map[string]interface{}{"dataset_id": datasetID})
	waitForStatus(t, router, sessionID, models.StatusCompleted)

	// Attaching after completion yields the greeting and the terminal replay.
	conn := dialSession(t, ts, sessionID)

	greeting := readEvent(t, conn)
	if greeting.Type != models.EventConnected {
		t.Fatalf("Expected connected greeting, got %s", greeting.Type)
	}
	if greeting.Current != 5 {
		t.Errorf("Expected snapshot current 5, got %d", greeting.Current)
	}

	terminal := readEvent(t, conn)
	if terminal.Type != models.EventCompleted {
		t.Fatalf("Expected completed replay, got %s", terminal.Type)
	}
	if terminal.Stats == nil {
		t.Error("Expected final stats on the replayed terminal event")
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected the connection to close after the replay")
	}
}

func TestProgressSocketUnknownSession(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	router := server.Router()

	ts := httptest.NewServer(router)
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/nonexistent"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Expected the dial to fail for an unknown session")
	}
	if resp != nil {
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("Expected 404, got %d", resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestProgressSocketPingPong(t *testing.T) {
	server, _ := testutil.SetupTestServer(t)
	scorer := newGatedScorer()
	useMockScorer(server, scorer)
	router := server.Router()

	ts := httptest.NewServer(router)
	defer ts.Close()

	datasetID := testutil.SeedDataset(t, server.Store(), "pingable", 3)
	sessionID := startSession(t, router, "/api/analysis/start",
		map[string]interface{}{"dataset_id": datasetID})

	conn := dialSession(t, ts, sessionID)
	readEvent(t, conn) // greeting

	if err := conn.WriteJSON(map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("Failed to send ping: %v", err)
	}
	for {
		ev := readEvent(t, conn)
		if ev.Type == models.EventPong {
			break
		}
		if ev.Type != models.EventHeartbeat {
			t.Fatalf("Expected pong or heartbeat, got %s", ev.Type)
		}
	}

	close(scorer.release)
	waitForStatus(t, router, sessionID, models.StatusCompleted)
}

func TestProgressSocketStopControl(t *testing.T) {
	server, testApp := testutil.SetupTestServer(t)
	scorer := newGatedScorer()
	useMockScorer(server, scorer)
	router := server.Router()

	ts := httptest.NewServer(router)
	defer ts.Close()

	datasetID := testutil.SeedDataset(t, server.Store(), "ws-stoppable", 9)
	sessionID := startSession(t, router, "/api/analysis/start",
		map[string]interface{}{"dataset_id": datasetID, "batch_size": 3})

	conn := dialSession(t, ts, sessionID)
	readEvent(t, conn) // greeting

	if err := conn.WriteJSON(map[string]string{"type": "stop"}); err != nil {
		t.Fatalf("Failed to send stop: %v", err)
	}

	// Give the read pump a moment to latch the stop, then let the runner go.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		sess, err := testApp.Registry.Get(sessionID)
		if err != nil {
			t.Fatalf("Session vanished: %v", err)
		}
		if sess.CancelRequested() {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(scorer.release)
	final := waitForStatus(t, router, sessionID, models.StatusStopped)
	session := final["session"].(map[string]interface{})
	if session["current"].(float64) > 3 {
		t.Errorf("Expected at most one batch after the stop, got %v", session["current"])
	}
}
