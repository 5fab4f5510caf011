package httpserver

import (
	"net/http"
	"time"

	"tradesim/internal/admin"
	"tradesim/internal/events"
	"tradesim/internal/httputil"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// eventFilter decides whether a bus event goes to one connection.
type eventFilter func(evt events.Event) bool

// userFilter passes broadcast quotes and the user's own domain events.
func userFilter(userID string) eventFilter {
	return func(evt events.Event) bool {
		if evt.Type == events.TypeQuote {
			return true
		}
		return evt.UserID != "" && evt.UserID == userID
	}
}

// adminFilter passes the domain events the admin holds rights for. Quotes
// are left to the user stream.
func adminFilter(p admin.Principal) eventFilter {
	return func(evt events.Event) bool {
		switch evt.Type {
		case events.TypeDeposit, events.TypeWithdrawal:
			return p.Has(admin.RightFunding)
		case events.TypeOrder:
			return p.Has(admin.RightOrders)
		case events.TypeLoan:
			return p.Has(admin.RightLoans)
		}
		return false
	}
}

type wsStream struct {
	bus      *events.Bus
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func newWSStream(bus *events.Bus, log *zap.Logger, origin string) wsStream {
	return wsStream{
		bus: bus,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return allowOrigin(r, origin) },
		},
	}
}

// serve pumps filtered bus events to the socket until either side closes.
func (s wsStream) serve(w http.ResponseWriter, r *http.Request, filter eventFilter, who string) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	sub := s.bus.Subscribe()
	defer s.bus.Unsubscribe(sub)
	s.log.Debug("ws connected", zap.String("client", who))

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return
			}
			if !filter(evt) {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			s.log.Debug("ws disconnected", zap.String("client", who))
			return
		case <-r.Context().Done():
			return
		}
	}
}

// WSHandler streams quotes and the caller's own order, funding and loan
// updates.
type WSHandler struct {
	stream wsStream
	auth   Authenticator
}

func NewWSHandler(bus *events.Bus, authSvc Authenticator, log *zap.Logger, origin string) *WSHandler {
	return &WSHandler{stream: newWSStream(bus, log, origin), auth: authSvc}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticate(h.auth, r, true)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.stream.serve(w, r, userFilter(userID), userID)
}

// AdminWSHandler streams domain events to console operators.
type AdminWSHandler struct {
	stream wsStream
	tokens *admin.Tokens
	admins admin.Directory
}

func NewAdminWSHandler(bus *events.Bus, tokens *admin.Tokens, admins admin.Directory, log *zap.Logger, origin string) *AdminWSHandler {
	return &AdminWSHandler{stream: newWSStream(bus, log, origin), tokens: tokens, admins: admins}
}

func (h *AdminWSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := h.tokens.Authorize(r.Context(), h.admins, admin.BearerOrQuery(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.stream.serve(w, r, adminFilter(p), "admin:"+p.Username)
}
