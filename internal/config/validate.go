package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"logrelay/internal/relay"
	kit "logrelay/internal/transport"
)

// ErrInvalidConfig wraps every validation failure. Callers treat it as fatal
// at startup and as a rejected reload afterwards.
var ErrInvalidConfig = errors.New("invalid config")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			return s == "" || relay.ParseSeverity(s, 0) != 0
		})
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true
			}
			d, err := time.ParseDuration(s)
			return err == nil && d >= 0
		})
		_ = v.RegisterValidation("chatid", func(fl validator.FieldLevel) bool {
			_, err := kit.ParseChatTarget(fl.Field().String(), 0)
			return err == nil
		})
		_ = v.RegisterValidation("cronspec", func(fl validator.FieldLevel) bool {
			s := strings.TrimSpace(fl.Field().String())
			if s == "" {
				return true
			}
			_, err := cron.ParseStandard(s)
			return err == nil
		})
		validate = v
	})
	return validate
}

// Validate checks cfg after defaults were applied.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}
	err := validatorInstance().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	// Namespace is "Config.telegram.token"; drop the root type.
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	switch fe.Tag() {
	case "required":
		return path + " is required"
	case "required_if":
		return path + " is required for this driver"
	case "gt":
		return path + " must be > " + fe.Param()
	case "gte":
		return path + " must be >= " + fe.Param()
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", path, fe.Param(), fmt.Sprint(fe.Value()))
	default:
		return fmt.Sprintf("%s: invalid value %q (%s)", path, fmt.Sprint(fe.Value()), fe.Tag())
	}
}
