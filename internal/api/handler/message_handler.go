package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/trustcore/internal/api/middleware"
	"github.com/d60-Lab/trustcore/internal/service"
	"github.com/d60-Lab/trustcore/pkg/response"
)

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	Content     string `json:"content" binding:"required,max=5000"`
	// 蜜罐字段，正常客户端不会填写
	Website string `json:"website"`
}

// SendMessage 发送私信
// @Summary 发送私信（反滥用检查 + 内容审核）
// @Tags 私信
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body sendMessageRequest true "私信内容"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 422 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /api/v1/messages [post]
func (h *Handler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg, err := h.messages.SendMessage(c.Request.Context(), service.SendMessageRequest{
		SenderID:    middleware.ActorID(c),
		RecipientID: req.RecipientID,
		Content:     req.Content,
		Honeypot:    req.Website,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, msg)
}

// MarkRead 标记私信已读
// @Summary 标记已读
// @Tags 私信
// @Security BearerAuth
// @Param id path string true "私信ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/messages/{id}/read [post]
func (h *Handler) MarkRead(c *gin.Context) {
	if err := h.messages.MarkRead(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListNotifications 当前用户的通知
// @Summary 通知列表
// @Tags 通知
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	page, pageSize := pagination(c)
	list, err := h.notifications.ListForUser(c.Request.Context(), middleware.ActorID(c), (page-1)*pageSize, pageSize)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
