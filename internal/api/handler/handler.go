package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/trustcore/internal/repository"
	"github.com/d60-Lab/trustcore/internal/service"
	"github.com/d60-Lab/trustcore/pkg/response"
)

// Handler 聚合各业务服务的 HTTP 入口
type Handler struct {
	messages      service.MessageService
	classifier    service.ContentClassifier
	publisher     *service.Publisher
	signals       service.SignalService
	queue         service.ModerationQueue
	admin         service.AdminService
	reputation    service.ReputationEngine
	notifications repository.NotificationRepository
}

type Deps struct {
	Messages      service.MessageService
	Classifier    service.ContentClassifier
	Publisher     *service.Publisher
	Signals       service.SignalService
	Queue         service.ModerationQueue
	Admin         service.AdminService
	Reputation    service.ReputationEngine
	Notifications repository.NotificationRepository
}

func New(d Deps) *Handler {
	return &Handler{
		messages:      d.Messages,
		classifier:    d.Classifier,
		publisher:     d.Publisher,
		signals:       d.Signals,
		queue:         d.Queue,
		admin:         d.Admin,
		reputation:    d.Reputation,
		notifications: d.Notifications,
	}
}

// rejection 拒绝类错误附带的结构化信息
type rejection struct {
	Rule     string   `json:"rule,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// statusOf 把业务错误映射为 HTTP 状态码，未知错误为 500
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrContentRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		response.InternalError(c, err)
		return
	}
	var rej *service.RejectError
	if errors.As(err, &rej) {
		msg := rej.Reason
		if msg == "" {
			msg = rej.Kind.Error()
		}
		var data any
		if rej.Rule != "" || len(rej.Keywords) > 0 {
			data = rejection{Rule: rej.Rule, Keywords: rej.Keywords}
		}
		response.Error(c, status, msg, data)
		return
	}
	response.Error(c, status, err.Error(), nil)
}

func pagination(c *gin.Context) (page, pageSize int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// Healthz 存活检查
func (h *Handler) Healthz(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}
