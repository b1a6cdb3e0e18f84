package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tariel-x/callsupport/internal/config"
	"github.com/tariel-x/callsupport/internal/rooms"
	"github.com/tariel-x/callsupport/internal/turn"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

// ICEProvider hands out relay servers for an accepted call.
type ICEProvider interface {
	ICEServers(host string) []turn.ICEServer
}

type Handlers struct {
	config     *config.Config
	db         *gorm.DB
	rooms      *rooms.Store
	events     *EventHub
	turnServer ICEProvider
	pusher     Pusher
	wsUpgrader websocket.Upgrader
	nowFn      func() time.Time
	logger     *slog.Logger
}

func New(cfg *config.Config, db *gorm.DB, store *rooms.Store, events *EventHub, turnServer ICEProvider, pusher Pusher, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		config:     cfg,
		db:         db,
		rooms:      store,
		events:     events,
		turnServer: turnServer,
		pusher:     pusher,
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		nowFn:  time.Now,
		logger: logger,
	}
}
