package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"home_energy/internal/aggregate"
	"home_energy/internal/metrics"
	"home_energy/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ReloadFunc builds a fresh aggregator from the configured sources, reporting
// each loaded source to observer.
type ReloadFunc func(ctx context.Context, observer aggregate.Observer) (*aggregate.Aggregator, error)

// Handler serves the report dashboard: it streams report rows on request and
// swaps in a freshly loaded aggregator on reload.
type Handler struct {
	hub     *Hub
	bridge  *Bridge
	reload  ReloadFunc
	logger  *log.Logger
	metrics *metrics.Metrics

	mu  sync.RWMutex
	agg *aggregate.Aggregator

	reloading sync.Mutex
}

type HandlerOption func(*Handler)

func WithLogger(logger *log.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMetrics counts reloads in m.LoadsTotal.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// NewHandler serves agg until the first reload. A nil reload disables
// data:reload.
func NewHandler(hub *Hub, agg *aggregate.Aggregator, reload ReloadFunc, opts ...HandlerOption) *Handler {
	h := &Handler{
		hub:    hub,
		bridge: NewBridge(hub),
		reload: reload,
		logger: log.Default(),
		agg:    agg,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Aggregator returns the aggregator currently being served.
func (h *Handler) Aggregator() *aggregate.Aggregator {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.agg
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(h.hub, conn)
	h.hub.Register(client)
	go client.writePump()
	h.logger.Printf("client %s connected", client.id)

	if msg, err := h.dataLoadedMessage(); err == nil {
		client.deliver(msg)
	}

	h.readPump(r.Context(), client)
}

func (h *Handler) readPump(ctx context.Context, c *Client) {
	defer func() {
		h.hub.Unregister(c)
		c.conn.Close()
		h.logger.Printf("client %s disconnected", c.id)
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("WebSocket read error: %v", err)
			}
			return
		}

		h.handleMessage(ctx, c, msg)
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *Client, msg []byte) {
	var env Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		h.sendError(c, fmt.Sprintf("invalid message: %v", err))
		return
	}

	switch env.Type {
	case TypeReportRequest:
		var p ReportRequestPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.sendError(c, fmt.Sprintf("invalid report:request payload: %v", err))
			return
		}
		g, err := model.ParseGranularity(p.Granularity)
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		h.streamReport(c, g)

	case TypeDataReload:
		if err := h.Reload(ctx); err != nil {
			h.sendError(c, err.Error())
		}

	default:
		h.sendError(c, fmt.Sprintf("unknown message type: %s", env.Type))
	}
}

// streamReport sends one report:row per interval to c, then report:done.
func (h *Handler) streamReport(c *Client, g model.Granularity) {
	it, err := h.Aggregator().Intervals(g)
	if err != nil {
		h.sendError(c, err.Error())
		return
	}

	rows := 0
	for row := range it.All() {
		msg, err := NewEnvelope(TypeReportRow, ReportRowPayload{
			Granularity:   string(g),
			IntervalStart: row.IntervalStart.Format(time.RFC3339),
			ProducedWh:    int64(row.Produced),
			NetUsedWh:     int64(row.NetUsed),
			ConsumedWh:    int64(row.Consumed),
			ConsumedKWh:   row.Consumed.KWh().String(),
		})
		if err != nil {
			h.logger.Printf("Error encoding report row: %v", err)
			return
		}
		if !c.deliver(msg) {
			return
		}
		rows++
	}

	if msg, err := NewEnvelope(TypeReportDone, ReportDonePayload{Granularity: string(g), Rows: rows}); err == nil {
		c.deliver(msg)
	}
}

// Reload rebuilds the aggregator, broadcasting source:loaded for each source
// and data:loaded when done. Concurrent reloads run one at a time; on error
// the previous aggregator stays in place.
func (h *Handler) Reload(ctx context.Context) error {
	if h.reload == nil {
		return fmt.Errorf("reload is not configured")
	}
	h.reloading.Lock()
	defer h.reloading.Unlock()

	agg, err := h.reload(ctx, h.bridge)
	h.observeLoad(err)
	if err != nil {
		h.logger.Printf("reload failed: %v", err)
		return fmt.Errorf("reload: %w", err)
	}

	h.mu.Lock()
	h.agg = agg
	h.mu.Unlock()

	h.broadcastDataLoaded()
	return nil
}

func (h *Handler) observeLoad(err error) {
	if h.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	h.metrics.LoadsTotal.WithLabelValues(result).Inc()
}

func (h *Handler) broadcastDataLoaded() {
	msg, err := h.dataLoadedMessage()
	if err != nil {
		h.logger.Printf("Error creating data:loaded message: %v", err)
		return
	}
	h.hub.Broadcast(msg)
}

func (h *Handler) dataLoadedMessage() ([]byte, error) {
	agg := h.Aggregator()
	s := agg.Stats()
	payload := DataLoadedPayload{
		Stats: StatsInfo{
			Warnings:     s.Warnings,
			Conflicts:    s.Conflicts,
			ProdSources:  s.ProdSources,
			ProdRecords:  s.ProdRecords,
			ProdDupsOK:   s.ProdDupsOK,
			UsageSources: s.UsageSources,
			UsageRecords: s.UsageRecords,
			UsageDupsOK:  s.UsageDupsOK,
		},
		Hours: agg.HourCount(),
	}
	if tr, ok := agg.TimeRange(); ok {
		payload.TimeRange = &TimeRangeInfo{
			Start: tr.Start.Format(time.RFC3339),
			End:   tr.End.Format(time.RFC3339),
		}
	}
	return NewEnvelope(TypeDataLoaded, payload)
}

func (h *Handler) sendError(c *Client, message string) {
	msg, err := NewEnvelope(TypeError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	c.deliver(msg)
}
