package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/trustcore/internal/api/middleware"
	"github.com/d60-Lab/trustcore/internal/service"
	"github.com/d60-Lab/trustcore/pkg/response"
)

type resolveRequest struct {
	Decision string `json:"decision" binding:"required,oneof=restore purge"`
	Reason   string `json:"reason" binding:"max=500"`
}

// ListQueue 待处理审核条目
// @Summary 审核队列（管理员）
// @Tags 审核
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/moderation/queue [get]
func (h *Handler) ListQueue(c *gin.Context) {
	page, pageSize := pagination(c)
	list, err := h.queue.ListPending(c.Request.Context(), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}

// Resolve 恢复或清除
// @Summary 处理审核条目（管理员）
// @Tags 审核
// @Accept json
// @Security BearerAuth
// @Param id path string true "条目ID"
// @Param request body resolveRequest true "处理决定"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/moderation/queue/{id}/resolve [post]
func (h *Handler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	entry, err := h.queue.Resolve(c.Request.Context(), middleware.ActorID(c), c.Param("id"), service.Decision(req.Decision), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, entry)
}
