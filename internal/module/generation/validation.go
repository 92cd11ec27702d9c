package generation

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/artboard/server/internal/module/generation/descriptor"
)

var registerOnce sync.Once

// RegisterValidators adds the generation binding tags to gin's validator:
// aspect_ratio, resolution_tier, output_kind and output_format.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		err = registerTags(v)
	})
	return err
}

func registerTags(v *validator.Validate) error {
	tags := map[string]validator.Func{
		"aspect_ratio": func(fl validator.FieldLevel) bool {
			return descriptor.ValidAspectRatio(fl.Field().String())
		},
		"resolution_tier": func(fl validator.FieldLevel) bool {
			return descriptor.ValidTier(fl.Field().String())
		},
		"output_kind": func(fl validator.FieldLevel) bool {
			k := OutputKind(fl.Field().String())
			return k == OutputAsset || k == OutputFrame
		},
		"output_format": func(fl validator.FieldLevel) bool {
			return descriptor.ValidOutputFormat(fl.Field().String())
		},
	}
	for tag, fn := range tags {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register %s: %w", tag, err)
		}
	}
	return nil
}
