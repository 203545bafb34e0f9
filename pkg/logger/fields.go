package logger

// 统一的日志字段命名常量
// 用于确保整个项目中日志字段命名的一致性，便于日志查询和分析
const (
	// FieldTraceID 追踪 ID 字段
	FieldTraceID = "traceId"

	// FieldOwner 远端归属身份字段
	FieldOwner = "owner"

	// FieldLocalID 本地笔记 ID 字段
	FieldLocalID = "localId"

	// FieldRemoteID 远端文档 ID 字段
	FieldRemoteID = "remoteId"

	// FieldCollection 远端集合名称字段
	FieldCollection = "collection"

	// FieldPhase 同步阶段字段（push / pull / conflict / notify）
	FieldPhase = "phase"

	// FieldAction 操作类型字段
	FieldAction = "action"

	// FieldReason 触发原因字段
	FieldReason = "reason"

	// FieldDuration 耗时字段
	FieldDuration = "duration"

	// FieldMethod 方法名称字段
	FieldMethod = "method"

	// FieldURL 请求地址字段
	FieldURL = "url"

	// FieldTask 任务名称字段
	FieldTask = "task"
)
