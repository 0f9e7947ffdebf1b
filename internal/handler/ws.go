package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"solestore-payments/internal/domain"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The storefront runs on a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OrderFeed pushes order status transitions to subscribed checkout pages.
// Connections are keyed by order number; a page subscribes right after
// initiating checkout and closes once the order settles.
type OrderFeed struct {
	mu     sync.Mutex
	subs   map[string]map[*websocket.Conn]struct{}
	logger *zap.Logger

	// Serializes NotifyOrder fan-outs; gorilla connections tolerate only
	// one concurrent writer.
	writeMu sync.Mutex
}

func NewOrderFeed(logger *zap.Logger) *OrderFeed {
	return &OrderFeed{
		subs:   make(map[string]map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// Subscribe upgrades the request and parks the connection until the
// client disconnects. All traffic is server-to-client; inbound reads only
// serve to detect the close.
func (f *OrderFeed) Subscribe(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "order_number")
	if orderNumber == "" {
		respondError(w, http.StatusBadRequest, "order number is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("websocket upgrade failed",
			zap.String("order_number", orderNumber),
			zap.Error(err))
		return
	}

	f.add(orderNumber, conn)
	f.logger.Debug("order feed subscribed",
		zap.String("order_number", orderNumber))

	go func() {
		defer func() {
			f.remove(orderNumber, conn)
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// NotifyOrder fans an order snapshot out to its subscribers. Dead
// connections are dropped on write failure.
func (f *OrderFeed) NotifyOrder(order *domain.Order) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.subs[order.OrderNumber]))
	for conn := range f.subs[order.OrderNumber] {
		conns = append(conns, conn)
	}
	f.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(order); err != nil {
			f.logger.Debug("dropping dead order feed connection",
				zap.String("order_number", order.OrderNumber),
				zap.Error(err))
			f.remove(order.OrderNumber, conn)
			conn.Close()
		}
	}
}

func (f *OrderFeed) add(orderNumber string, conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[orderNumber] == nil {
		f.subs[orderNumber] = make(map[*websocket.Conn]struct{})
	}
	f.subs[orderNumber][conn] = struct{}{}
}

func (f *OrderFeed) remove(orderNumber string, conn *websocket.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if set, ok := f.subs[orderNumber]; ok {
		delete(set, conn)
		if len(set) == 0 {
			delete(f.subs, orderNumber)
		}
	}
}
