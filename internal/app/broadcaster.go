package app

import (
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	pkgapp "github.com/haierkeys/onyx-note-sync/pkg/app"
	"go.uber.org/zap"
)

// hubBroadcaster adapts the websocket hub to service.RecordBroadcaster, the collection is the topic
// hubBroadcaster 将 WebSocket 服务适配为 service.RecordBroadcaster，以集合名作为主题
type hubBroadcaster struct {
	wss    *pkgapp.WebsocketServer
	logger *zap.Logger
}

func (b *hubBroadcaster) BroadcastRecord(owner, collection string, action domain.RemoteAction, doc *domain.Document) {
	if doc == nil {
		return
	}
	n := b.wss.Broadcast(owner, collection, dto.RealtimeRecordEvent, dto.RecordEventDTO{
		Action: string(action),
		Record: dto.RecordFromDomain(doc),
	})
	b.logger.Debug("record event broadcast",
		zap.String("action", string(action)),
		zap.String("id", doc.ID),
		zap.Int("receivers", n))
}
