package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/trustcore/pkg/response"
)

// GetReputation 实时计算信誉（不写库）
// @Summary 查询信誉
// @Tags 信誉
// @Param actor_id path string true "用户ID"
// @Success 200 {object} response.Response{data=service.Score}
// @Failure 404 {object} response.Response
// @Router /api/v1/reputation/{actor_id} [get]
func (h *Handler) GetReputation(c *gin.Context) {
	s, err := h.reputation.Compute(c.Request.Context(), c.Param("actor_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, s)
}

// RecomputeReputation 重算并持久化
// @Summary 重算信誉（管理员）
// @Tags 信誉
// @Security BearerAuth
// @Param actor_id path string true "用户ID"
// @Success 200 {object} response.Response{data=service.Change}
// @Router /api/v1/reputation/{actor_id}/recompute [post]
func (h *Handler) RecomputeReputation(c *gin.Context) {
	ch, err := h.reputation.Recompute(c.Request.Context(), c.Param("actor_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, ch)
}
