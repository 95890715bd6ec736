// Command example wires the engineio and socketio packages into a minimal
// net/http server. It is illustrative only; a real deployment mounts the
// same two handlers behind whatever HTTP runtime it already has.
package main

import (
	"log"
	"net/http"
	"os"

	rds "github.com/redis/go-redis/v9"

	"github.com/dsio/gosio/engineio"
	"github.com/dsio/gosio/engineio/config"
	"github.com/dsio/gosio/engineio/transport"
	"github.com/dsio/gosio/socketio"
	"github.com/dsio/gosio/socketio/bind"
	"github.com/dsio/gosio/socketio/bus"
	"github.com/dsio/gosio/socketio/metrics"
)

type chatState struct {
	nickname string
}

func main() {
	var groupBus bus.GroupBus = bus.NewMemoryBus()
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		groupBus = bus.NewRedisBus(rds.NewClient(&rds.Options{Addr: redisAddr}))
	}

	eng := engineio.New(config.FromEnv(), nil)
	server := socketio.NewServer(eng, groupBus)
	eng.App = server // the Socket.IO server is itself an engineio/app.Application

	bind.Register(server, bind.Binding{
		Namespace: "/chat",
		Connect: func(socket *socketio.NamespaceSocket, auth any) (bind.State, bool) {
			nickname := "anonymous"
			if m, ok := auth.(map[string]any); ok {
				if n, ok := m["nickname"].(string); ok && n != "" {
					nickname = n
				}
			}
			socket.Join("lobby")
			return &chatState{nickname: nickname}, true
		},
		Disconnect: func(socket *socketio.NamespaceSocket, state bind.State, reason string) {
			log.Printf("chat: %s disconnected (%s)", nicknameOf(state), reason)
		},
		Events: map[string]bind.EventFunc{
			"message": func(socket *socketio.NamespaceSocket, state bind.State, args []any) {
				nickname := nicknameOf(state)
				room := "lobby"
				broadcastArgs := append([]any{nickname}, args...)
				if err := server.Emit("/chat", &room, "message", broadcastArgs...); err != nil {
					log.Printf("chat: broadcast failed: %v", err)
				}
			},
		},
	})

	mux := http.NewServeMux()
	pollingHandler := transport.NewPollingHandler(eng)
	wsHandler := transport.NewWebSocketHandler(eng)

	mux.HandleFunc("/engine.io/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("transport") == "websocket" {
			wsHandler.ServeHTTP(w, r)
			return
		}
		pollingHandler.ServeHTTP(w, r)
	})
	mux.Handle("/metrics", metrics.Handler())

	addr := ":8080"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.Printf("gosio example listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal(err)
	}
}

func nicknameOf(state bind.State) string {
	cs, ok := state.(*chatState)
	if !ok || cs == nil {
		return "anonymous"
	}
	return cs.nickname
}
