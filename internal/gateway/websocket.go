package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizmatters/agent-builder/chart-studio/internal/auth"
	"github.com/bizmatters/agent-builder/chart-studio/internal/models"
	"github.com/bizmatters/agent-builder/chart-studio/internal/store"
	"github.com/bizmatters/agent-builder/chart-studio/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// clientBuffer is how many events a slow client may lag behind before
	// it is disconnected.
	clientBuffer = 16
)

// ChartStream pushes chart change events to websocket clients.
type ChartStream struct {
	store    *store.Store
	tracer   trace.Tracer
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[chan models.ChartEvent]struct{}
	cancel  func()
}

// NewChartStream subscribes to st. Call Close to detach it.
func NewChartStream(st *store.Store, allowedOrigins []string) *ChartStream {
	cs := &ChartStream{
		store:   st,
		tracer:  otel.Tracer("chart-studio-websocket"),
		clients: make(map[chan models.ChartEvent]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin:      originChecker(allowedOrigins),
			HandshakeTimeout: 10 * time.Second,
		},
	}
	cs.cancel = st.Subscribe(cs.broadcast)
	return cs
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// broadcast runs under the store lock and must not block.
func (cs *ChartStream) broadcast(ev models.ChartEvent) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	for ch := range cs.clients {
		select {
		case ch <- ev:
		default:
			logger.WithFields(logrus.Fields{"version": ev.Version}).Warn("Dropping slow chart stream client")
			delete(cs.clients, ch)
			close(ch)
		}
	}
}

func (cs *ChartStream) register() chan models.ChartEvent {
	ch := make(chan models.ChartEvent, clientBuffer)
	cs.mu.Lock()
	cs.clients[ch] = struct{}{}
	cs.mu.Unlock()
	return ch
}

func (cs *ChartStream) unregister(ch chan models.ChartEvent) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, ok := cs.clients[ch]; ok {
		delete(cs.clients, ch)
		close(ch)
	}
}

// Clients returns the number of connected clients.
func (cs *ChartStream) Clients() int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return len(cs.clients)
}

// Close detaches the stream from the store and disconnects every client.
func (cs *ChartStream) Close() {
	cs.cancel()
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for ch := range cs.clients {
		delete(cs.clients, ch)
		close(ch)
	}
}

// Stream handles GET /api/ws/chart. The first frame is the live document
// (or a cleared event when none is loaded), then every change follows.
func (cs *ChartStream) Stream(c *gin.Context) {
	_, span := cs.tracer.Start(c.Request.Context(), "chart_stream.stream")
	defer span.End()

	if userID := auth.UserID(c); userID != "" {
		span.SetAttributes(attribute.String("user.id", userID))
	}

	conn, err := cs.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		logger.WithFields(logrus.Fields{"error": err.Error()}).Warn("Failed to upgrade chart stream")
		return
	}
	defer conn.Close()

	events := cs.register()
	defer cs.unregister(events)

	if err := cs.writeEvent(conn, cs.snapshot()); err != nil {
		return
	}

	done := make(chan struct{})
	go cs.readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "stream closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := cs.writeEvent(conn, ev); err != nil {
				span.RecordError(err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (cs *ChartStream) snapshot() models.ChartEvent {
	spec := cs.store.Get()
	if spec == nil {
		return models.ChartEvent{Type: models.ChartEventCleared, Timestamp: time.Now().UTC()}
	}
	return models.ChartEvent{
		Type:      models.ChartEventLoaded,
		Version:   spec.Version,
		Source:    store.SourceLoad,
		Spec:      spec,
		Timestamp: time.Now().UTC(),
	}
}

func (cs *ChartStream) writeEvent(conn *websocket.Conn, ev models.ChartEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(ev)
}

// readPump discards client frames; it only exists to process pongs and
// notice disconnects.
func (cs *ChartStream) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.WithFields(logrus.Fields{"error": err.Error()}).Debug("Chart stream client read error")
			}
			return
		}
	}
}
