package middleware

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/internal/semantic"
)

var registerOnce sync.Once

// RegisterValidators 注册自定义 binding 标签：reaction_kind、content_kind、profile
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("reaction_kind", func(fl validator.FieldLevel) bool {
			return model.ReactionKind(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("content_kind", func(fl validator.FieldLevel) bool {
			return model.ContentKind(fl.Field().String()).Valid()
		})
		// 空值交给默认档位
		_ = v.RegisterValidation("profile", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || semantic.Profile(s).Valid()
		})
	})
}
