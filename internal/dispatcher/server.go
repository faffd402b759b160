package dispatcher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ogas1024/chat-room/internal/transport"
	"github.com/ogas1024/chat-room/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades HTTP requests and hands the connections to the
// dispatcher.
type WSHandler struct {
	d    *Dispatcher
	opts transport.Options
}

func NewWSHandler(d *Dispatcher, opts transport.Options) *WSHandler {
	return &WSHandler{d: d, opts: opts}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.L().Warn().Err(err).Str(log.FieldRemote, r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	go h.d.Serve(transport.NewWebSocket(ws, h.opts))
}

func (h *WSHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat/ws", h.HandleWebSocket)
}

// ServeTCP accepts length-prefixed framed connections until ctx is
// canceled or the listener fails.
func (d *Dispatcher) ServeTCP(ctx context.Context, lis net.Listener, opts transport.Options) error {
	go func() {
		<-ctx.Done()
		lis.Close()
	}()

	var delay time.Duration
	for {
		conn, err := lis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else if delay *= 2; delay > time.Second {
					delay = time.Second
				}
				log.L().Warn().Err(err).Dur("retry_in", delay).Msg("tcp accept failed")
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0
		go d.Serve(transport.NewTCP(conn, opts))
	}
}
