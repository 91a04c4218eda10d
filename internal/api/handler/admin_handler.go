package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/trustcore/internal/api/middleware"
	"github.com/d60-Lab/trustcore/pkg/response"
)

type reasonRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type banRequest struct {
	Reason string     `json:"reason" binding:"max=500"`
	Until  *time.Time `json:"until"`
}

type keywordRequest struct {
	Keyword string `json:"keyword" binding:"required,max=128"`
	Reason  string `json:"reason" binding:"max=500"`
}

// bindReason 请求体可选
func bindReason(c *gin.Context) (string, bool) {
	var req reasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return "", false
		}
	}
	return req.Reason, true
}

// BanMessaging 封禁私信，until 为空时永久
// @Summary 封禁私信
// @Tags 管理
// @Accept json
// @Security BearerAuth
// @Param id path string true "用户ID"
// @Param request body banRequest false "原因与截止时间"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/actors/{id}/ban [post]
func (h *Handler) BanMessaging(c *gin.Context) {
	var req banRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	if err := h.admin.BanMessaging(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req.Reason, req.Until); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// UnbanMessaging 解除私信封禁
// @Summary 解除封禁
// @Tags 管理
// @Security BearerAuth
// @Param id path string true "用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/actors/{id}/unban [post]
func (h *Handler) UnbanMessaging(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	if err := h.admin.UnbanMessaging(c.Request.Context(), middleware.ActorID(c), c.Param("id"), reason); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// GrantExpert 授予专家身份
// @Summary 授予专家
// @Tags 管理
// @Security BearerAuth
// @Param id path string true "用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/actors/{id}/expert [post]
func (h *Handler) GrantExpert(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	if err := h.admin.GrantExpert(c.Request.Context(), middleware.ActorID(c), c.Param("id"), reason); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// RevokeExpert 撤销专家身份
// @Summary 撤销专家
// @Tags 管理
// @Security BearerAuth
// @Param id path string true "用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/actors/{id}/expert [delete]
func (h *Handler) RevokeExpert(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	if err := h.admin.RevokeExpert(c.Request.Context(), middleware.ActorID(c), c.Param("id"), reason); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ResetReputation 信誉清零
// @Summary 重置信誉
// @Tags 管理
// @Security BearerAuth
// @Param id path string true "用户ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/actors/{id}/reset-reputation [post]
func (h *Handler) ResetReputation(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	if err := h.admin.ResetReputation(c.Request.Context(), middleware.ActorID(c), c.Param("id"), reason); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// AddKeyword 添加黑名单关键词
// @Summary 添加关键词
// @Tags 管理
// @Accept json
// @Security BearerAuth
// @Param request body keywordRequest true "关键词"
// @Success 201 {object} response.Response
// @Router /api/v1/admin/blacklist [post]
func (h *Handler) AddKeyword(c *gin.Context) {
	var req keywordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	k, err := h.admin.AddKeyword(c.Request.Context(), middleware.ActorID(c), req.Keyword, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, k)
}

// RemoveKeyword 停用关键词
// @Summary 移除关键词
// @Tags 管理
// @Security BearerAuth
// @Param id path string true "关键词ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/blacklist/{id} [delete]
func (h *Handler) RemoveKeyword(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	if err := h.admin.RemoveKeyword(c.Request.Context(), middleware.ActorID(c), c.Param("id"), reason); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ClearFlags 清除内容标记
// @Summary 清除标记
// @Tags 管理
// @Security BearerAuth
// @Param id path string true "内容ID"
// @Success 200 {object} response.Response
// @Router /api/v1/admin/contents/{id}/clear-flags [post]
func (h *Handler) ClearFlags(c *gin.Context) {
	reason, ok := bindReason(c)
	if !ok {
		return
	}
	if err := h.admin.ClearFlags(c.Request.Context(), middleware.ActorID(c), c.Param("id"), reason); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// ListAuditLog 审计日志
// @Summary 审计日志
// @Tags 管理
// @Security BearerAuth
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/admin/audit [get]
func (h *Handler) ListAuditLog(c *gin.Context) {
	page, pageSize := pagination(c)
	list, err := h.admin.ListAuditLog(c.Request.Context(), middleware.ActorID(c), page, pageSize)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
