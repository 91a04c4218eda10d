package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/trustcore/internal/api/middleware"
	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/internal/service"
	"github.com/d60-Lab/trustcore/pkg/response"
)

type classifyRequest struct {
	Text    string `json:"text" binding:"required"`
	Profile string `json:"profile" binding:"profile"`
}

type publishRequest struct {
	Kind     string  `json:"kind" binding:"required,content_kind"`
	Body     string  `json:"body" binding:"required,max=20000"`
	ParentID *string `json:"parent_id"`
	Profile  string  `json:"profile" binding:"profile"`
}

type recheckRequest struct {
	Profile string `json:"profile" binding:"profile"`
}

type reactionRequest struct {
	Kind string `json:"kind" binding:"required,reaction_kind"`
}

type voteRequest struct {
	Value int `json:"value" binding:"required,oneof=-1 1"`
}

type reportRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

// Classify 只做审核判定，不落库
// @Summary 内容审核预检
// @Tags 内容
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body classifyRequest true "待检查文本"
// @Success 200 {object} response.Response{data=service.Verdict}
// @Router /api/v1/classify [post]
func (h *Handler) Classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.Success(c, h.classifier.Classify(c.Request.Context(), req.Text, semantic.Profile(req.Profile)))
}

// Publish 发布讨论、评论或评价
// @Summary 发布内容（先审核后落库）
// @Tags 内容
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body publishRequest true "内容"
// @Success 201 {object} response.Response
// @Failure 422 {object} response.Response
// @Router /api/v1/contents [post]
func (h *Handler) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	content, err := h.publisher.Publish(c.Request.Context(), service.PublishRequest{
		AuthorID: middleware.ActorID(c),
		Kind:     model.ContentKind(req.Kind),
		Body:     req.Body,
		ParentID: req.ParentID,
		Profile:  semantic.Profile(req.Profile),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, content)
}

// Recheck 对已发布内容复审，不通过时送审
// @Summary 内容复审（管理员）
// @Tags 内容
// @Security BearerAuth
// @Param id path string true "内容ID"
// @Param request body recheckRequest false "审核档位"
// @Success 200 {object} response.Response{data=service.RecheckResult}
// @Router /api/v1/contents/{id}/recheck [post]
func (h *Handler) Recheck(c *gin.Context) {
	var req recheckRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	res, err := h.publisher.Recheck(c.Request.Context(), c.Param("id"), semantic.Profile(req.Profile))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// Report 人工举报内容
// @Summary 举报内容
// @Tags 内容
// @Security BearerAuth
// @Param id path string true "内容ID"
// @Param request body reportRequest false "举报原因"
// @Success 200 {object} response.Response
// @Router /api/v1/contents/{id}/report [post]
func (h *Handler) Report(c *gin.Context) {
	var req reportRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	entry, created, err := h.queue.Enqueue(c.Request.Context(), c.Param("id"), model.SourceManual, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"entry_id": entry.ID, "created": created})
}

// Trending 热门内容
// @Summary 热门内容（举手数）
// @Tags 信号
// @Param limit query int false "数量" default(20)
// @Success 200 {object} response.Response{data=[]service.TrendingItem}
// @Router /api/v1/contents/trending [get]
func (h *Handler) Trending(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	items, err := h.signals.Trending(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, items)
}

// RaiseHand 切换举手
// @Summary 举手/取消举手
// @Tags 信号
// @Security BearerAuth
// @Param id path string true "内容ID"
// @Success 200 {object} response.Response{data=service.RaiseHandResult}
// @Router /api/v1/contents/{id}/raise-hand [post]
func (h *Handler) RaiseHand(c *gin.Context) {
	res, err := h.signals.ToggleRaiseHand(c.Request.Context(), middleware.ActorID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// React 切换反应
// @Summary 添加/取消反应
// @Tags 信号
// @Accept json
// @Security BearerAuth
// @Param id path string true "内容ID"
// @Param request body reactionRequest true "反应类型"
// @Success 200 {object} response.Response{data=service.ReactionResult}
// @Router /api/v1/contents/{id}/reactions [post]
func (h *Handler) React(c *gin.Context) {
	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.signals.ToggleReaction(c.Request.Context(), middleware.ActorID(c), c.Param("id"), model.ReactionKind(req.Kind))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}

// Vote 切换投票
// @Summary 赞成/反对
// @Tags 信号
// @Accept json
// @Security BearerAuth
// @Param id path string true "内容ID"
// @Param request body voteRequest true "+1 或 -1"
// @Success 200 {object} response.Response{data=service.VoteResult}
// @Router /api/v1/contents/{id}/votes [post]
func (h *Handler) Vote(c *gin.Context) {
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	res, err := h.signals.ToggleVote(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req.Value)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, res)
}
