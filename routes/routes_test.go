package routes

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	handlers "carpool/internal/handlers/shared"
	"carpool/internal/models"
	"carpool/internal/repositories/memory"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/pkg/logger"
	"carpool/pkg/websocket"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "routes-secret"

type envelope struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *utils.APIError `json:"error"`
}

type testServer struct {
	t      *testing.T
	server *httptest.Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	store := memory.NewStore()
	hub := websocket.NewHub(websocket.NewLocalBus(64), log)
	broadcaster := services.NewChatBroadcaster(hub)
	guard := services.NewAccessGuard()

	moderation := services.NewModerationService(store.Chat(), store.Moderation(), guard, broadcaster, log)
	chat := services.NewChatService(store.Chat(), store.Rides(), store.Reservations(), guard, moderation, hub, broadcaster, services.ChatOptions{}, log)
	reservations := services.NewReservationService(store.Rides(), store.Reservations(), store.Chat(), services.NewLogNotifier(log), log)
	rides := services.NewRideService(store.Rides(), log)

	router := gin.New()
	SetupRoutes(router, Handlers{
		Ride:        handlers.NewRideHandler(rides),
		Reservation: handlers.NewReservationHandler(reservations),
		Chat:        handlers.NewChatHandler(chat, moderation, guard, websocket.NewHandler(hub, websocket.HandlerOptions{}), log),
		Moderation:  handlers.NewModerationHandler(moderation),
		Health:      handlers.NewHealthHandler("test", nil),
	}, testSecret)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{t: t, server: server}
}

func newPrincipal(permissions ...string) models.Principal {
	return models.Principal{UserID: primitive.NewObjectID(), Username: "user", Permissions: permissions}
}

func (s *testServer) token(p models.Principal) string {
	s.t.Helper()
	tok, err := utils.GenerateAccessToken(p.UserID, p.Username, "rider", p.Permissions, testSecret, time.Hour)
	if err != nil {
		s.t.Fatalf("GenerateAccessToken: %v", err)
	}
	return tok
}

// do sends a request as p and decodes the response envelope into out.
func (s *testServer) do(p models.Principal, method, path string, body interface{}, out interface{}) int {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("Marshal: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, s.server.URL+path, reader)
	if err != nil {
		s.t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token(p))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		s.t.Fatalf("decode %s %s: %v", method, path, err)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			s.t.Fatalf("decode data %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (s *testServer) dial(p *models.Principal, sessionID string) (*gorilla.Conn, *http.Response, error) {
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws/chat/" + sessionID
	if p != nil {
		url += "?token=" + s.token(*p)
	}
	return gorilla.DefaultDialer.Dial(url, nil)
}

func (s *testServer) publishRide(driver models.Principal, seats int) *models.Ride {
	s.t.Helper()
	var ride models.Ride
	code := s.do(driver, http.MethodPost, "/api/v1/rides", map[string]interface{}{
		"seats_offered": seats,
		"start_city":    "Lyon",
		"end_city":      "Paris",
		"start_at":      time.Now().Add(48 * time.Hour),
	}, &ride)
	if code != http.StatusCreated {
		s.t.Fatalf("expected 201 publishing ride, got %d", code)
	}
	return &ride
}

func (s *testServer) openChat(rider models.Principal, rideID primitive.ObjectID) *models.ChatSession {
	s.t.Helper()
	var session models.ChatSession
	if code := s.do(rider, http.MethodPost, "/api/v1/rides/"+rideID.Hex()+"/chat", nil, &session); code != http.StatusOK {
		s.t.Fatalf("expected 200 opening chat, got %d", code)
	}
	return &session
}

func readEvent(t *testing.T, conn *gorilla.Conn) models.ChatEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.ChatEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	return event
}

func TestReservationFlow(t *testing.T) {
	s := newTestServer(t)
	driver, rider, other := newPrincipal(), newPrincipal(), newPrincipal()

	ride := s.publishRide(driver, 1)
	path := "/api/v1/rides/" + ride.ID.Hex() + "/reservations"

	if code := s.do(rider, http.MethodPost, path, nil, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400 without a chat session, got %d", code)
	}

	s.openChat(rider, ride.ID)
	var reservation models.Reservation
	if code := s.do(rider, http.MethodPost, path, nil, &reservation); code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	if reservation.Status != models.ReservationStatusPending {
		t.Errorf("expected PENDING, got %s", reservation.Status)
	}
	if code := s.do(rider, http.MethodPost, path, nil, nil); code != http.StatusConflict {
		t.Errorf("expected 409 for a second booking, got %d", code)
	}

	transition := map[string]string{"reservation_id": reservation.ID.Hex(), "action": "accept"}
	if code := s.do(rider, http.MethodPost, "/api/v1/reservations/transition", transition, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 when the rider accepts, got %d", code)
	}
	bogus := map[string]string{"reservation_id": reservation.ID.Hex(), "action": "foo"}
	if code := s.do(rider, http.MethodPost, "/api/v1/reservations/transition", bogus, nil); code != http.StatusForbidden {
		t.Errorf("expected 403 for a rider sending an unknown action, got %d", code)
	}
	if code := s.do(driver, http.MethodPost, "/api/v1/reservations/transition", transition, &reservation); code != http.StatusOK {
		t.Fatalf("expected 200 accepting, got %d", code)
	}
	if reservation.Status != models.ReservationStatusAccepted {
		t.Errorf("expected ACCEPTED, got %s", reservation.Status)
	}

	s.openChat(other, ride.ID)
	if code := s.do(other, http.MethodPost, path, nil, nil); code != http.StatusConflict {
		t.Errorf("expected 409 on a full ride, got %d", code)
	}

	if code := s.do(driver, http.MethodDelete, "/api/v1/rides/"+ride.ID.Hex(), nil, nil); code != http.StatusConflict {
		t.Errorf("expected 409 deleting a booked ride, got %d", code)
	}

	if code := s.do(rider, http.MethodPost, "/api/v1/reservations/"+reservation.ID.Hex()+"/cancel", nil, &reservation); code != http.StatusOK {
		t.Fatalf("expected 200 canceling, got %d", code)
	}
	if reservation.Status != models.ReservationStatusCanceled {
		t.Errorf("expected CANCELED, got %s", reservation.Status)
	}

	var mine struct {
		Reservations []*models.Reservation `json:"reservations"`
	}
	if code := s.do(rider, http.MethodGet, "/api/v1/reservations", nil, &mine); code != http.StatusOK {
		t.Fatalf("expected 200 listing, got %d", code)
	}
	if len(mine.Reservations) != 1 {
		t.Errorf("expected 1 reservation, got %d", len(mine.Reservations))
	}

	if code := s.do(driver, http.MethodDelete, "/api/v1/rides/"+ride.ID.Hex(), nil, nil); code != http.StatusOK {
		t.Errorf("expected 200 deleting a vacant ride, got %d", code)
	}
	if code := s.do(driver, http.MethodGet, "/api/v1/rides/"+ride.ID.Hex(), nil, nil); code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", code)
	}
}

func TestRejectsMalformedInput(t *testing.T) {
	s := newTestServer(t)
	p := newPrincipal()

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"bad ride id", http.MethodGet, "/api/v1/rides/nope", nil},
		{"same cities", http.MethodPost, "/api/v1/rides", map[string]interface{}{
			"seats_offered": 2, "start_city": "Lyon", "end_city": "Lyon", "start_at": time.Now().Add(time.Hour),
		}},
		{"bad transition", http.MethodPost, "/api/v1/reservations/transition", map[string]string{"reservation_id": "x", "action": "accept"}},
		{"unknown action", http.MethodPost, "/api/v1/reservations/transition", map[string]string{"reservation_id": primitive.NewObjectID().Hex(), "action": "maybe"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.do(p, tt.method, tt.path, tt.body, nil); code != http.StatusBadRequest && code != http.StatusNotFound {
				t.Errorf("expected 400 or 404, got %d", code)
			}
		})
	}
}

func TestModerationRequiresPermission(t *testing.T) {
	s := newTestServer(t)

	if code := s.do(newPrincipal(), http.MethodGet, "/api/v1/moderation/sessions", nil, nil); code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", code)
	}
	if code := s.do(newPrincipal(models.PermissionModerateMessages), http.MethodGet, "/api/v1/moderation/sessions", nil, nil); code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
}

func TestLiveChatReplayAndRefusals(t *testing.T) {
	s := newTestServer(t)
	driver, rider, stranger := newPrincipal(), newPrincipal(), newPrincipal()
	mod := newPrincipal(models.PermissionModerateMessages)

	ride := s.publishRide(driver, 2)
	session := s.openChat(rider, ride.ID)

	for name, p := range map[string]*models.Principal{"anonymous": nil, "stranger": &stranger} {
		_, resp, err := s.dial(p, session.ID.Hex())
		if err == nil {
			t.Fatalf("%s: expected handshake refusal", name)
		}
		if resp == nil || resp.StatusCode != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %v", name, resp)
		}
	}
	if _, resp, err := s.dial(&rider, "nope"); err == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403 for a malformed session id")
	}

	driverConn, _, err := s.dial(&driver, session.ID.Hex())
	if err != nil {
		t.Fatalf("driver dial: %v", err)
	}
	defer driverConn.Close()

	var ids []string
	for _, text := range []string{"first", "second", "third"} {
		if err := driverConn.WriteJSON(map[string]string{"message": text}); err != nil {
			t.Fatalf("WriteJSON: %v", err)
		}
	}
	for _, want := range []string{"first", "second", "third"} {
		event := readEvent(t, driverConn)
		if event.Type != models.ChatEventMessage || event.Message != want {
			t.Fatalf("expected %q, got %+v", want, event)
		}
		if event.UserUUID != driver.UserID.Hex() {
			t.Errorf("expected sender %s, got %s", driver.UserID.Hex(), event.UserUUID)
		}
		ids = append(ids, event.MessageID)
	}

	if code := s.do(mod, http.MethodPost, "/api/v1/moderation/messages/"+ids[0]+"/hide", nil, nil); code != http.StatusOK {
		t.Fatalf("expected 200 hiding, got %d", code)
	}
	action := readEvent(t, driverConn)
	if action.Type != models.ChatEventAction || action.Action != models.ChatActionHide || action.MessageID != ids[0] {
		t.Errorf("expected hide action for %s, got %+v", ids[0], action)
	}

	riderConn, _, err := s.dial(&rider, session.ID.Hex())
	if err != nil {
		t.Fatalf("rider dial: %v", err)
	}
	defer riderConn.Close()

	replay := []models.ChatEvent{readEvent(t, riderConn), readEvent(t, riderConn), readEvent(t, riderConn)}
	if replay[0].Message != utils.HiddenMessagePlaceholder {
		t.Errorf("expected placeholder for hidden message, got %q", replay[0].Message)
	}
	if replay[0].Hidden == nil || !*replay[0].Hidden {
		t.Errorf("expected hidden flag on replay")
	}
	if replay[1].Message != "second" || replay[2].Message != "third" {
		t.Errorf("expected replay in order, got %q %q", replay[1].Message, replay[2].Message)
	}

	modConn, _, err := s.dial(&mod, session.ID.Hex())
	if err != nil {
		t.Fatalf("moderator dial: %v", err)
	}
	defer modConn.Close()
	if event := readEvent(t, modConn); event.Message != "first" {
		t.Errorf("expected moderators to see the original, got %q", event.Message)
	}

	if err := riderConn.WriteJSON(map[string]string{"message": "live"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if event := readEvent(t, driverConn); event.Message != "live" {
		t.Errorf("expected live message, got %+v", event)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp, err := http.Get(s.server.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
