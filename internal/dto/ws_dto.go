package dto

// WebSocketAction WebSocket text message type
// WebSocket 文本消息类型
type WebSocketAction = string

const (
	// RealtimeSubscribe client asks for a collection's change stream
	// RealtimeSubscribe 客户端订阅集合变更
	RealtimeSubscribe WebSocketAction = "Subscribe"
	// RealtimeUnsubscribe 取消订阅
	RealtimeUnsubscribe WebSocketAction = "Unsubscribe"
	// RealtimeRecordEvent server pushes one record change
	// RealtimeRecordEvent 服务端推送记录变更
	RealtimeRecordEvent WebSocketAction = "RecordEvent"
)

// SubscribeRequest 订阅请求
type SubscribeRequest struct {
	Collection string `json:"collection" binding:"required,collection"`
}

// RecordEventDTO 记录变更事件
type RecordEventDTO struct {
	Action string    `json:"action"`
	Record RecordDTO `json:"record"`
}
