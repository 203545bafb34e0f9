package app

import (
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	"github.com/lxzan/gws"
	"go.uber.org/zap"
)

const (
	WebSocketServerPingInterval = 25 * time.Second
	WebSocketServerPingWait     = 40 * time.Second
)

// WebSocketMessage is one `type|payload` text frame
// WebSocketMessage 一条 `type|payload` 文本帧
type WebSocketMessage struct {
	Type string
	Data []byte
}

// ParseWebSocketMessage splits a frame at the first '|'
// ParseWebSocketMessage 按第一个 '|' 拆分消息
func ParseWebSocketMessage(raw string) (WebSocketMessage, bool) {
	index := strings.Index(raw, "|")
	if index <= 0 {
		return WebSocketMessage{}, false
	}
	return WebSocketMessage{Type: raw[:index], Data: []byte(raw[index+1:])}, true
}

// EncodeWebSocketMessage 编码为 `type|json` 文本帧
func EncodeWebSocketMessage(msgType string, content any) ([]byte, error) {
	body, err := sonic.Marshal(content)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(msgType)+1+len(body))
	out = append(out, msgType...)
	out = append(out, '|')
	return append(out, body...), nil
}

type WebsocketServerConfig struct {
	GWSOption    gws.ServerOption
	PingInterval time.Duration
	PingWait     time.Duration
}

// WebsocketClient 每个 WebSocket 连接及其订阅状态
type WebsocketClient struct {
	conn     *gws.Conn
	done     chan struct{}
	doneOnce sync.Once
	Identity *Identity

	mu     sync.RWMutex
	topics map[string]struct{}
	logger *zap.Logger
}

// Subscribe 订阅主题
func (c *WebsocketClient) Subscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics[topic] = struct{}{}
}

// Unsubscribe 取消订阅
func (c *WebsocketClient) Unsubscribe(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}

// IsSubscribed 是否已订阅主题
func (c *WebsocketClient) IsSubscribed(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.topics[topic]
	return ok
}

// ToResponse sends a Res envelope tagged with the action
// ToResponse 以 action 为类型发送 Res 结构
func (c *WebsocketClient) ToResponse(codeObj *code.Code, action string) {
	content := Res{
		Code:    codeObj.Code(),
		Status:  codeObj.Status(),
		Message: codeObj.Msg(),
		Data:    codeObj.Data(),
	}
	if codeObj.HaveDetails() {
		content.Details = strings.Join(codeObj.Details(), ",")
	}
	if err := c.Send(action, content); err != nil {
		c.logger.Warn("websocket send failed", zap.String("action", action), zap.Error(err))
	}
}

// Send 发送一条 `type|json` 消息
func (c *WebsocketClient) Send(msgType string, content any) error {
	payload, err := EncodeWebSocketMessage(msgType, content)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(gws.OpcodeText, payload)
}

func (c *WebsocketClient) close() {
	c.doneOnce.Do(func() { close(c.done) })
}

// pingLoop 定期发送 Ping 消息
func (c *WebsocketClient) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WritePing(nil); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				return
			}
		}
	}
}

// ------------------------------------> WebsocketServer

type ConnStorage = map[*gws.Conn]*WebsocketClient

// WebsocketServer routes `type|payload` frames to handlers and fans out broadcasts
// WebsocketServer 按消息类型分发请求并负责广播
type WebsocketServer struct {
	handlers map[string]func(*WebsocketClient, *WebSocketMessage)
	clients  ConnStorage
	mu       sync.RWMutex
	up       *gws.Upgrader
	config   *WebsocketServerConfig
	logger   *zap.Logger
}

func NewWebsocketServer(c WebsocketServerConfig, logger *zap.Logger) *WebsocketServer {
	if c.PingInterval == 0 {
		c.PingInterval = WebSocketServerPingInterval
	}
	if c.PingWait == 0 {
		c.PingWait = WebSocketServerPingWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &WebsocketServer{
		handlers: make(map[string]func(*WebsocketClient, *WebSocketMessage)),
		clients:  make(ConnStorage),
		config:   &c,
		logger:   logger,
	}
	w.up = gws.NewUpgrader(w, &w.config.GWSOption)
	return w
}

// Run upgrades an authenticated request, the identity must already be on the context
// Run 升级已鉴权的请求，身份需由中间件提前写入
func (w *WebsocketServer) Run() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := GetIdentity(c)
		if identity == nil {
			NewResponse(c).ToResponse(code.ErrorNotUserAuthToken)
			return
		}
		socket, err := w.up.Upgrade(c.Writer, c.Request)
		if err != nil {
			w.logger.Error("websocket upgrade failed", zap.Error(err))
			return
		}
		client := &WebsocketClient{
			conn:     socket,
			done:     make(chan struct{}),
			Identity: identity,
			topics:   make(map[string]struct{}),
			logger:   w.logger,
		}
		w.addClient(client)
		go client.pingLoop(w.config.PingInterval)
		go socket.ReadLoop()
	}
}

// Use 注册消息处理器
func (w *WebsocketServer) Use(action string, handler func(*WebsocketClient, *WebSocketMessage)) {
	w.handlers[action] = handler
}

// Broadcast sends one frame to every client of owner subscribed to topic, returns the receiver count
// Broadcast 向 owner 下订阅了 topic 的所有连接广播，返回接收数量
func (w *WebsocketServer) Broadcast(owner, topic, msgType string, content any) int {
	payload, err := EncodeWebSocketMessage(msgType, content)
	if err != nil {
		w.logger.Error("websocket broadcast encode failed", zap.Error(err))
		return 0
	}

	w.mu.RLock()
	targets := make([]*gws.Conn, 0, len(w.clients))
	for conn, c := range w.clients {
		if c.Identity.Owner == owner && c.IsSubscribed(topic) {
			targets = append(targets, conn)
		}
	}
	w.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}
	b := gws.NewBroadcaster(gws.OpcodeText, payload)
	defer b.Close()
	for _, conn := range targets {
		_ = b.Broadcast(conn)
	}
	return len(targets)
}

// ClientCount 当前连接数
func (w *WebsocketServer) ClientCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.clients)
}

// Close 关闭所有连接
func (w *WebsocketServer) Close() {
	w.mu.RLock()
	conns := make([]*gws.Conn, 0, len(w.clients))
	for conn := range w.clients {
		conns = append(conns, conn)
	}
	w.mu.RUnlock()
	for _, conn := range conns {
		conn.WriteClose(1001, []byte("ServerShutdown"))
	}
}

func (w *WebsocketServer) getClient(conn *gws.Conn) *WebsocketClient {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.clients[conn]
}

func (w *WebsocketServer) addClient(c *WebsocketClient) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clients[c.conn] = c
}

func (w *WebsocketServer) removeClient(conn *gws.Conn) *WebsocketClient {
	w.mu.Lock()
	defer w.mu.Unlock()
	c := w.clients[conn]
	delete(w.clients, conn)
	return c
}

func (w *WebsocketServer) OnOpen(conn *gws.Conn) {
	_ = conn.SetDeadline(time.Now().Add(w.config.PingWait))
}

func (w *WebsocketServer) OnClose(conn *gws.Conn, err error) {
	c := w.removeClient(conn)
	if c == nil {
		return
	}
	c.close()
	w.logger.Info("websocket client leave", zap.String("owner", c.Identity.Owner), zap.Int("count", w.ClientCount()))
}

func (w *WebsocketServer) OnPing(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(w.config.PingWait))
	_ = socket.WritePong(nil)
}

func (w *WebsocketServer) OnPong(socket *gws.Conn, payload []byte) {
	_ = socket.SetDeadline(time.Now().Add(w.config.PingWait))
}

func (w *WebsocketServer) OnMessage(conn *gws.Conn, message *gws.Message) {
	defer message.Close()
	if message.Opcode != gws.OpcodeText {
		return
	}
	_ = conn.SetDeadline(time.Now().Add(w.config.PingWait))

	raw := message.Data.String()
	if raw == "close" {
		conn.WriteClose(1000, []byte("ClientClose"))
		return
	}

	c := w.getClient(conn)
	if c == nil {
		return
	}

	msg, ok := ParseWebSocketMessage(raw)
	if !ok {
		w.logger.Warn("websocket illegal message", zap.String("owner", c.Identity.Owner))
		return
	}

	handler, exists := w.handlers[msg.Type]
	if !exists {
		c.ToResponse(code.ErrorInvalidParams.WithDetails("unknown message type "+msg.Type), msg.Type)
		return
	}
	handler(c, &msg)
}
