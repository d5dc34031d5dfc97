package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/okdriver/okdriver-backend/internal/domain"
	"github.com/okdriver/okdriver-backend/pkg/logger"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(logger.NewNop(), nil)
	go hub.Run()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = hub.Stop(ctx)
	})
	return hub
}

// dial поднимает сервер, который кладет соединение в переданные комнаты
func dial(t *testing.T, hub *Hub, rooms ...string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, rooms...)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, err := hub.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats: %v", err)
		}
		if st.Clients == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", st.Clients, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func TestHubDeliversToRoomMembersOnly(t *testing.T) {
	hub := startHub(t)
	company, vehicle := uuid.New(), uuid.New()

	companyConn := dial(t, hub, domain.CompanyRoom(company))
	vehicleConn := dial(t, hub, domain.VehicleRoom(vehicle))
	otherConn := dial(t, hub, domain.CompanyRoom(uuid.New()))
	waitClients(t, hub, 3)

	payload := map[string]string{"message": "reach the depot"}
	if err := hub.Broadcast(context.Background(), domain.RealtimeNewMessage, payload, domain.VehicleRoom(vehicle), domain.CompanyRoom(company)); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	for _, conn := range []*websocket.Conn{companyConn, vehicleConn} {
		env := readEnvelope(t, conn)
		if env.Event != domain.RealtimeNewMessage || !strings.Contains(string(env.Data), "reach the depot") {
			t.Fatalf("envelope = %+v", env)
		}
	}

	_ = otherConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := otherConn.ReadMessage(); err == nil {
		t.Fatal("connection outside the rooms received the event")
	}
}

func TestHubDeliversOncePerClient(t *testing.T) {
	hub := startHub(t)
	company, vehicle := uuid.New(), uuid.New()

	conn := dial(t, hub, domain.CompanyRoom(company), domain.VehicleRoom(vehicle))
	waitClients(t, hub, 1)

	_ = hub.Broadcast(context.Background(), domain.RealtimeLocationUpdate, map[string]float64{"lat": 1}, domain.VehicleRoom(vehicle), domain.CompanyRoom(company))
	_ = hub.Broadcast(context.Background(), "second", map[string]int{"n": 2}, domain.CompanyRoom(company))

	if env := readEnvelope(t, conn); env.Event != domain.RealtimeLocationUpdate {
		t.Fatalf("first = %s", env.Event)
	}
	if env := readEnvelope(t, conn); env.Event != "second" {
		t.Fatalf("second = %s, duplicate delivery", env.Event)
	}
}

func TestHubDropsSlowConsumer(t *testing.T) {
	hub := NewHub(logger.NewNop(), nil)
	hub.sendQueue = 1
	go hub.Run()
	defer hub.Stop(context.Background())

	room := domain.CompanyRoom(uuid.New())
	slow := &Client{id: "slow", hub: hub, send: make(chan []byte, 1)}
	if !hub.Attach(slow, room) {
		t.Fatal("Attach failed")
	}

	ctx := context.Background()
	_ = hub.Broadcast(ctx, "one", 1, room)
	_ = hub.Broadcast(ctx, "two", 2, room)

	deadline := time.Now().Add(2 * time.Second)
	for {
		st, _ := hub.Stats(ctx)
		if st.Clients == 0 && st.Rooms == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("slow consumer still attached: %+v", st)
		}
		time.Sleep(5 * time.Millisecond)
	}

	<-slow.send
	if _, open := <-slow.send; open {
		t.Fatal("send queue of a dropped client must be closed")
	}
}

func TestDisconnectLeavesRooms(t *testing.T) {
	hub := startHub(t)
	conn := dial(t, hub, domain.ClientRoom(uuid.New()))
	waitClients(t, hub, 1)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	waitClients(t, hub, 0)
}

func TestRoomsFor(t *testing.T) {
	company, vehicle, client := uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name      string
		principal *domain.Principal
		want      []string
	}{
		{"company", &domain.Principal{Role: domain.RoleCompany, CompanyID: &company}, []string{"company:" + company.String()}},
		{"driver", &domain.Principal{Role: domain.RoleDriver, VehicleID: &vehicle}, []string{"vehicle:" + vehicle.String()}},
		{"driver without vehicle", &domain.Principal{Role: domain.RoleDriver}, nil},
		{"client", &domain.Principal{Role: domain.RoleClient, ClientID: &client, CompanyID: &company}, []string{"client_" + client.String()}},
		{"api user", &domain.Principal{Role: domain.RoleUser}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RoomsFor(tt.principal)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("RoomsFor = %v, want %v", got, tt.want)
			}
		})
	}
}
