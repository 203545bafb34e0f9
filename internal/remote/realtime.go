package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/haierkeys/onyx-note-sync/internal/domain"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	"github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/haierkeys/onyx-note-sync/pkg/logger"
	"github.com/lxzan/gws"
	"go.uber.org/zap"
)

const unsubscribeWait = 3 * time.Second

// realtimeURL 将 http(s) 基础地址转换为 ws(s) 实时地址
func (c *Client) realtimeURL() string {
	u := *c.base
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/realtime"
	return u.String()
}

// Subscribe opens the realtime stream and returns after the server acknowledged it
// Subscribe 建立实时订阅，服务端确认后返回
func (c *Client) Subscribe(ctx context.Context, collection string, handler domain.RemoteEventHandler) (domain.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("realtime handler is nil")
	}
	sub := &subscription{
		collection: collection,
		handler:    handler,
		ack:        make(chan error, 1),
		done:       make(chan struct{}),
		logger:     c.logger.With(zap.String(logger.FieldCollection, collection)),
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := gws.NewClient(sub, &gws.ClientOption{
		Addr:          c.realtimeURL(),
		RequestHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", code.ErrorSubscriptionDropped, err)
	}
	sub.conn = conn
	go conn.ReadLoop()

	payload, err := app.EncodeWebSocketMessage(dto.RealtimeSubscribe, dto.SubscribeRequest{Collection: collection})
	if err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	if err := conn.WriteMessage(gws.OpcodeText, payload); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("%w: %v", code.ErrorSubscriptionDropped, err)
	}

	timer := time.NewTimer(c.ackTimeout)
	defer timer.Stop()
	select {
	case err := <-sub.ack:
		if err != nil {
			_ = sub.Unsubscribe()
			return nil, err
		}
	case <-sub.done:
		return nil, code.ErrorSubscriptionDropped.WithDetails("closed before acknowledgement")
	case <-timer.C:
		_ = sub.Unsubscribe()
		return nil, code.ErrorSubscriptionDropped.WithDetails("acknowledgement timeout")
	case <-ctx.Done():
		_ = sub.Unsubscribe()
		return nil, ctx.Err()
	}

	sub.logger.Info("realtime subscribed")
	return sub, nil
}

// subscription 一条实时订阅连接
type subscription struct {
	gws.BuiltinEventHandler

	conn       *gws.Conn
	collection string
	handler    domain.RemoteEventHandler
	logger     *zap.Logger

	ack          chan error
	done         chan struct{}
	doneOnce     sync.Once
	unsubscribed atomic.Bool
}

// Unsubscribe 关闭订阅并等待读循环退出
func (s *subscription) Unsubscribe() error {
	if s.unsubscribed.Swap(true) {
		<-s.done
		return nil
	}
	if payload, err := app.EncodeWebSocketMessage(dto.RealtimeUnsubscribe, dto.SubscribeRequest{Collection: s.collection}); err == nil {
		_ = s.conn.WriteMessage(gws.OpcodeText, payload)
	}
	s.conn.WriteClose(1000, []byte("Unsubscribe"))

	select {
	case <-s.done:
	case <-time.After(unsubscribeWait):
		_ = s.conn.NetConn().Close()
		<-s.done
	}
	return nil
}

// Done 订阅结束后关闭
func (s *subscription) Done() <-chan struct{} {
	return s.done
}

func (s *subscription) OnClose(socket *gws.Conn, err error) {
	s.doneOnce.Do(func() { close(s.done) })
	if !s.unsubscribed.Load() {
		s.logger.Warn("realtime subscription dropped",
			zap.Int("code", code.ErrorSubscriptionDropped.Code()),
			zap.Error(err))
	}
}

func (s *subscription) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.WritePong(payload)
}

func (s *subscription) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	if message.Opcode != gws.OpcodeText {
		return
	}
	msg, ok := app.ParseWebSocketMessage(message.Data.String())
	if !ok {
		return
	}

	switch msg.Type {
	case dto.RealtimeSubscribe:
		var res app.Res
		if err := sonic.Unmarshal(msg.Data, &res); err != nil {
			s.signalAck(code.ErrorSubscriptionDropped.WithDetails("bad acknowledgement"))
			return
		}
		if !res.Status {
			s.signalAck(code.ErrorSubscriptionDropped.WithDetails(fmt.Sprintf("refused: %d %s", res.Code, res.Message)))
			return
		}
		s.signalAck(nil)

	case dto.RealtimeRecordEvent:
		var ev dto.RecordEventDTO
		if err := sonic.Unmarshal(msg.Data, &ev); err != nil {
			s.logger.Warn("realtime event undecodable", zap.Error(err))
			return
		}
		action := domain.RemoteAction(ev.Action)
		if !action.Valid() || ev.Record.ID == "" {
			s.logger.Warn("realtime event ignored", zap.String(logger.FieldAction, ev.Action))
			return
		}
		s.handler(domain.RemoteEvent{Action: action, Document: *ev.Record.ToDomain()})
	}
}

func (s *subscription) signalAck(err error) {
	select {
	case s.ack <- err:
	default:
	}
}
