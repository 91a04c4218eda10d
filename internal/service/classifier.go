package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/trustcore/internal/cache"
	"github.com/d60-Lab/trustcore/internal/semantic"
	"github.com/d60-Lab/trustcore/pkg/logger"
	"github.com/d60-Lab/trustcore/pkg/metrics"
)

// 判定来自哪一阶段
const (
	StageBlacklist = "blacklist"
	StageSemantic  = "semantic"
)

// SafetyBlockedReason 依赖失败时唯一对外暴露的原因
const SafetyBlockedReason = "blocked for safety"

// Verdict 内容审核结论
type Verdict struct {
	Safe     bool     `json:"safe"`
	Reason   string   `json:"reason"`
	Keywords []string `json:"keywords,omitempty"`
	Stage    string   `json:"stage,omitempty"`
}

// KeywordLister 提供当前生效的黑名单
type KeywordLister interface {
	Active(ctx context.Context) ([]cache.Keyword, error)
}

// ContentClassifier 两阶段内容审核：关键词黑名单 + 外部语义检查，任何失败都判为不安全
type ContentClassifier interface {
	Classify(ctx context.Context, text string, profile semantic.Profile) Verdict
	// Check 不安全时返回 ErrContentRejected
	Check(ctx context.Context, text string, profile semantic.Profile) error
}

type contentClassifier struct {
	keywords KeywordLister
	semantic semantic.Classifier
}

func NewContentClassifier(keywords KeywordLister, sc semantic.Classifier) ContentClassifier {
	return &contentClassifier{keywords: keywords, semantic: sc}
}

func (c *contentClassifier) Classify(ctx context.Context, text string, profile semantic.Profile) Verdict {
	if profile == "" {
		profile = semantic.ProfileGeneral
	}
	v := c.classify(ctx, text, profile)
	metrics.ClassifierVerdicts.WithLabelValues(v.Stage, strconv.FormatBool(v.Safe)).Inc()
	return v
}

func (c *contentClassifier) Check(ctx context.Context, text string, profile semantic.Profile) error {
	v := c.Classify(ctx, text, profile)
	if v.Safe {
		return nil
	}
	return &RejectError{Kind: ErrContentRejected, Rule: v.Stage, Reason: v.Reason, Keywords: v.Keywords}
}

func (c *contentClassifier) classify(ctx context.Context, text string, profile semantic.Profile) Verdict {
	keywords, err := c.keywords.Active(ctx)
	if err != nil {
		return c.failClosed(StageBlacklist, err)
	}
	if matched, reasons := matchKeywords(text, keywords); len(matched) > 0 {
		return Verdict{
			Safe:     false,
			Reason:   "contains blocked terms: " + strings.Join(reasons, "; "),
			Keywords: matched,
			Stage:    StageBlacklist,
		}
	}
	return c.classifySemantic(ctx, text, profile)
}

func (c *contentClassifier) classifySemantic(ctx context.Context, text string, profile semantic.Profile) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			v = c.failClosed(StageSemantic, fmt.Errorf("classifier panic: %v", r))
		}
	}()
	if c.semantic == nil {
		return c.failClosed(StageSemantic, semantic.ErrNotConfigured)
	}
	res, err := c.semantic.Classify(ctx, text, profile)
	if err != nil {
		return c.failClosed(StageSemantic, err)
	}
	reason := strings.TrimSpace(res.Reason)
	if !res.Safe && reason == "" {
		reason = "content judged unsafe"
	}
	return Verdict{Safe: res.Safe, Reason: reason, Stage: StageSemantic}
}

// failClosed 依赖失败一律转为拒绝，原始错误只进日志
func (c *contentClassifier) failClosed(stage string, err error) Verdict {
	metrics.ClassifierFailures.Inc()
	logger.Warn("classifier failed closed", zap.String("stage", stage), zap.Error(fmt.Errorf("%w: %v", ErrDependencyFailure, err)))
	return Verdict{Safe: false, Reason: SafetyBlockedReason, Stage: stage}
}

// matchKeywords 不区分大小写的子串匹配，返回全部命中项
func matchKeywords(text string, keywords []cache.Keyword) (matched, reasons []string) {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		kw := strings.ToLower(strings.TrimSpace(k.Keyword))
		if kw == "" || !strings.Contains(lower, kw) {
			continue
		}
		matched = append(matched, k.Keyword)
		if k.Reason != "" {
			reasons = append(reasons, k.Keyword+" ("+k.Reason+")")
		} else {
			reasons = append(reasons, k.Keyword)
		}
	}
	return matched, reasons
}
