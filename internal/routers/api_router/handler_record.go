package api_router

import (
	"github.com/gin-gonic/gin"
	"github.com/haierkeys/onyx-note-sync/internal/dto"
	pkgapp "github.com/haierkeys/onyx-note-sync/pkg/app"
	"github.com/haierkeys/onyx-note-sync/pkg/code"
	apperrors "github.com/haierkeys/onyx-note-sync/pkg/errors"
)

// RecordHandler 集合记录 API 路由处理器
type RecordHandler struct {
	*Handler
}

// NewRecordHandler 创建 RecordHandler 实例
func NewRecordHandler(h *Handler) *RecordHandler {
	return &RecordHandler{Handler: h}
}

// invalid 输出参数校验错误
func invalid(c *gin.Context, errs pkgapp.ValidErrors) {
	pkgapp.NewResponse(c).ToResponse(code.ErrorInvalidParams.WithDetails(errs.Errors()...))
}

// List 列出集合中当前身份的全部记录
// @Router /api/collections/{collection}/records [get]
func (h *RecordHandler) List(c *gin.Context) {
	uri := &dto.CollectionURI{}
	if valid, errs := pkgapp.BindURIAndValid(c, uri); !valid {
		invalid(c, errs)
		return
	}

	ctx := c.Request.Context()
	docs, err := h.Server.CollectionService.List(ctx, pkgapp.GetOwner(c), uri.Collection)
	if err != nil {
		h.logError(ctx, "RecordHandler.List", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	list := make([]dto.RecordDTO, 0, len(docs))
	for _, d := range docs {
		list = append(list, dto.RecordFromDomain(d))
	}
	pkgapp.NewResponse(c).ToResponseList(code.Success, list, len(list))
}

// Get 获取单条记录
// @Router /api/collections/{collection}/records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	uri := &dto.RecordURI{}
	if valid, errs := pkgapp.BindURIAndValid(c, uri); !valid {
		invalid(c, errs)
		return
	}

	ctx := c.Request.Context()
	doc, err := h.Server.CollectionService.Get(ctx, pkgapp.GetOwner(c), uri.Collection, uri.ID)
	if err != nil {
		h.logError(ctx, "RecordHandler.Get", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.RecordFromDomain(doc)))
}

// Create 创建记录，相同 clientKey 返回已有记录
// @Router /api/collections/{collection}/records [post]
func (h *RecordHandler) Create(c *gin.Context) {
	uri := &dto.CollectionURI{}
	if valid, errs := pkgapp.BindURIAndValid(c, uri); !valid {
		invalid(c, errs)
		return
	}
	params := &dto.RecordCreateRequest{}
	if valid, errs := pkgapp.BindAndValid(c, params); !valid {
		invalid(c, errs)
		return
	}

	ctx := c.Request.Context()
	doc, err := h.Server.CollectionService.Create(ctx, pkgapp.GetOwner(c), uri.Collection, params)
	if err != nil {
		h.logError(ctx, "RecordHandler.Create", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.RecordFromDomain(doc)))
}

// Update 更新记录标题与内容
// @Router /api/collections/{collection}/records/{id} [patch]
func (h *RecordHandler) Update(c *gin.Context) {
	uri := &dto.RecordURI{}
	if valid, errs := pkgapp.BindURIAndValid(c, uri); !valid {
		invalid(c, errs)
		return
	}
	params := &dto.RecordUpdateRequest{}
	if valid, errs := pkgapp.BindAndValid(c, params); !valid {
		invalid(c, errs)
		return
	}

	ctx := c.Request.Context()
	doc, err := h.Server.CollectionService.Update(ctx, pkgapp.GetOwner(c), uri.Collection, uri.ID, params)
	if err != nil {
		h.logError(ctx, "RecordHandler.Update", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success.WithData(dto.RecordFromDomain(doc)))
}

// Delete 删除记录
// @Router /api/collections/{collection}/records/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	uri := &dto.RecordURI{}
	if valid, errs := pkgapp.BindURIAndValid(c, uri); !valid {
		invalid(c, errs)
		return
	}

	ctx := c.Request.Context()
	if err := h.Server.CollectionService.Delete(ctx, pkgapp.GetOwner(c), uri.Collection, uri.ID); err != nil {
		h.logError(ctx, "RecordHandler.Delete", err)
		apperrors.ErrorResponse(c, err)
		return
	}
	pkgapp.NewResponse(c).ToResponse(code.Success)
}
