package host

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSBridge serves the host command protocol over websocket: one text
// message per CommandEnvelope in, one per ResponseEnvelope or
// EventEnvelope out. It is the network equivalent of the stdio bridge,
// intended for local shells that cannot spawn a child process.
//
// One connection drives the runtime at a time; events are delivered
// through the runtime's callback slot while a connection is active, so
// registering another callback concurrently is not supported.
type WSBridge struct {
	rt       *Runtime
	log      Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	server *http.Server
}

// NewWSBridge creates a websocket bridge over rt.
func NewWSBridge(rt *Runtime, log Logger) *WSBridge {
	if log == nil {
		log = DefaultLogger()
	}
	return &WSBridge{
		rt:  rt,
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe serves the bridge on addr (endpoint /v1/channel) until
// ctx is canceled.
func (b *WSBridge) ListenAndServe(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/channel", b.handleChannel)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: mux}
	b.mu.Lock()
	b.server = srv
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	b.log.InfoPrintf("websocket bridge listening on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func marshalEnvelope(v any) (string, error) {
	data, err := json.Marshal(v)
	return string(data), err
}

func (b *WSBridge) handleChannel(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer ws.Close()

	var writeMu sync.Mutex
	writeText := func(jsonText string) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteMessage(websocket.TextMessage, []byte(jsonText))
	}

	// Events produced by this connection's commands flow through the
	// callback, synchronously within SendCommand below. The callback
	// only writes to the socket; it never re-enters the runtime.
	b.rt.SetEventCallback(func(eventJSON string) {
		if err := writeText(eventJSON); err != nil {
			b.log.WarnPrintf("write event to websocket: %v", err)
		}
	})
	defer b.rt.SetEventCallback(nil)

	// Pump: asynchronous events land in the poll queue (EmitEvent
	// bypasses the callback), so forward them between commands. The
	// read loop below is the only other socket writer.
	connDone := make(chan struct{})
	defer close(connDone)
	go func() {
		for {
			select {
			case <-connDone:
				return
			case <-b.rt.EventNotify():
				for {
					evJSON, ok := b.rt.PollEvent()
					if !ok {
						break
					}
					if err := writeText(evJSON); err != nil {
						b.log.WarnPrintf("write event to websocket: %v", err)
						return
					}
				}
			}
		}
	}()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				b.log.WarnPrintf("websocket read: %v", err)
			}
			return
		}

		respJSON, err := b.rt.SendCommand(string(msg))
		if err != nil {
			resp := NewErrorResponse(peekRequestID(string(msg)), err.Error())
			data, merr := marshalEnvelope(resp)
			if merr != nil {
				b.log.ErrorPrintf("marshal error response: %v", merr)
				continue
			}
			if err := writeText(data); err != nil {
				return
			}
			continue
		}
		if err := writeText(respJSON); err != nil {
			return
		}
	}
}
