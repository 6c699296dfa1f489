package handler

import (
	"fmt"
	"reflect"
	"strings"

	"support_chat_server/internal/model"
	"support_chat_server/pkg/constants"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// Trans renders validation failures for HandleParamError; set by InitTrans.
var Trans ut.Translator

const maxSessionIDLen = 64

// chatRules are the binding tags specific to chat requests.
var chatRules = []struct {
	tag     string
	fn      validator.Func
	message string
}{
	{"sessionid", validSessionID, "{0} must be a web- or tg- session id"},
	{"websession", validWebSessionID, "{0} must be a web- session id"},
}

// InitTrans installs the English messages on gin's validator, registers the
// chat rules and makes field errors use the names clients send (json, or form
// for query parameters).
func InitTrans(locale string) error {
	if binding.Validator == nil {
		binding.Validator = &defaultValidator{validator: validator.New()}
	}
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	v.RegisterTagNameFunc(clientFieldName)

	enT := en.New()
	Trans, ok = ut.New(enT, enT).GetTranslator(locale)
	if !ok {
		return fmt.Errorf("no %q translator for validation messages", locale)
	}
	if err := en_translations.RegisterDefaultTranslations(v, Trans); err != nil {
		return fmt.Errorf("register validation messages: %w", err)
	}

	for _, rule := range chatRules {
		if err := v.RegisterValidation(rule.tag, rule.fn); err != nil {
			return fmt.Errorf("register %s rule: %w", rule.tag, err)
		}
		message := rule.message
		err := v.RegisterTranslation(rule.tag, Trans,
			func(t ut.Translator) error { return t.Add(rule.tag, message, true) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(fe.Tag(), fe.Field())
				return s
			},
		)
		if err != nil {
			return fmt.Errorf("register %s message: %w", rule.tag, err)
		}
	}
	return nil
}

func clientFieldName(fld reflect.StructField) string {
	tag := fld.Tag.Get("json")
	if tag == "" {
		tag = fld.Tag.Get("form")
	}
	name := strings.SplitN(tag, ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}

func validSessionID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if len(id) > maxSessionIDLen {
		return false
	}
	if model.IsTelegramSessionID(id) {
		_, ok := model.TelegramChatID(id)
		return ok
	}
	return validWebSessionID(fl)
}

func validWebSessionID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return len(id) <= maxSessionIDLen && len(id) > len(constants.WEB_SESSION_PREFIX) &&
		strings.HasPrefix(id, constants.WEB_SESSION_PREFIX)
}

// RemoveTopStruct turns "SendMessageRequest.sessionId" into "sessionId".
func RemoveTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string, len(fields))
	for field, err := range fields {
		res[field[strings.Index(field, ".")+1:]] = err
	}
	return res
}

// defaultValidator backs binding.Validator when gin has none.
type defaultValidator struct {
	validator *validator.Validate
}

func (v *defaultValidator) ValidateStruct(obj any) error {
	return v.validator.Struct(obj)
}

func (v *defaultValidator) Engine() any {
	return v.validator
}
