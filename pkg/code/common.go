package code

// Generic codes
// 通用码
var (
	Success             = NewSuss(200, lang{en: "Success", zh_cn: "成功"})
	Failed              = NewError(400, lang{en: "Failed", zh_cn: "失败"})
	ErrorNotFound       = NewError(404, lang{en: "Resource not found", zh_cn: "资源不存在"})
	ErrorInvalidParams  = NewError(405, lang{en: "Invalid parameters", zh_cn: "参数错误"})
	ErrorServerInternal = NewError(500, lang{en: "Internal server error", zh_cn: "服务器内部错误"})

	ErrorNotUserAuthToken     = NewError(407, lang{en: "Missing identity token", zh_cn: "缺少身份令牌"})
	ErrorInvalidUserAuthToken = NewError(408, lang{en: "Invalid identity token", zh_cn: "身份令牌无效"})
	ErrorTooManyRequests      = NewError(429, lang{en: "Too many requests", zh_cn: "请求过于频繁"})

	// ErrorRouteNotFound no API route matches the method and path
	// ErrorRouteNotFound 没有与方法和路径匹配的接口
	ErrorRouteNotFound = NewError(406, lang{en: "Unknown API route", zh_cn: "接口不存在"})
	// ErrorRequestTimeout the request ran past server.request-timeout before answering
	// ErrorRequestTimeout 请求超过 server.request-timeout 仍未响应
	ErrorRequestTimeout = NewError(504, lang{en: "Request timed out", zh_cn: "请求超时"})

	ErrorDBQuery        = NewError(510, lang{en: "Database query failed", zh_cn: "数据库查询失败"})
	ErrorRecordNotFound = NewError(511, lang{en: "Record not found", zh_cn: "记录不存在"})
)

// Sync engine codes
// 同步引擎错误码
var (
	// ErrorConnectivityLost the remote store is unreachable, passes are skipped until restored
	// ErrorConnectivityLost 远端不可达，恢复前跳过同步
	ErrorConnectivityLost = NewError(601, lang{en: "Remote store is unreachable", zh_cn: "远端存储不可达"})
	// ErrorPartialSync some notes failed in a pass and are retried on the next one
	// ErrorPartialSync 本轮部分笔记失败，下轮重试
	ErrorPartialSync = NewError(602, lang{en: "Reconciliation finished with failures", zh_cn: "同步部分失败"})
	// ErrorBindingConflict a bound note was asked to bind to a different remote id
	// ErrorBindingConflict 已绑定的笔记被要求绑定到不同的远端 ID
	ErrorBindingConflict = NewError(603, lang{en: "Note is already bound to another remote document", zh_cn: "笔记已绑定到其他远端文档"})
	// ErrorOrphanedRemoteDocument local delete succeeded but the remote delete failed
	// ErrorOrphanedRemoteDocument 本地删除成功但远端删除失败
	ErrorOrphanedRemoteDocument = NewError(604, lang{en: "Remote document left orphaned", zh_cn: "远端文档成为孤儿"})
	// ErrorSubscriptionDropped the realtime stream closed, events in the gap are lost
	// ErrorSubscriptionDropped 实时订阅中断，期间事件丢失
	ErrorSubscriptionDropped = NewError(605, lang{en: "Realtime subscription dropped", zh_cn: "实时订阅中断"})
	ErrorNoteNotFound        = NewError(606, lang{en: "Note not found", zh_cn: "笔记不存在"})
	ErrorRemoteIDTaken       = NewError(607, lang{en: "Remote id is bound to another note", zh_cn: "远端 ID 已被其他笔记占用"})
	ErrorRemoteRequest       = NewError(608, lang{en: "Remote request failed", zh_cn: "远端请求失败"})
	ErrorSessionNotStarted   = NewError(609, lang{en: "Sync session is not running", zh_cn: "同步会话未运行"})
)
