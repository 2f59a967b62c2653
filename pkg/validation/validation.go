// Package validation はリクエストボディの入力検証を設定し、
// 検証エラーをクライアント向けのメッセージ一覧に変換する。
//
// Ginのバインディングが使用するvalidator/v10のエンジンに独自タグを登録するため、
// ルーティング設定前にRegisterを呼び出すこと。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// TagNotBlank は空白のみの文字列も拒否する検証タグ。
const TagNotBlank = "notblank"

var (
	registerOnce sync.Once
	registerErr  error
)

// Register はGinのバインディングエンジンに検証タグとJSONフィールド名の解決を登録する。
// 何度呼んでも登録は1回だけ行われる。
func Register() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = errors.New("バインディングの検証エンジンがvalidator/v10ではありません")
			return
		}
		v.RegisterTagNameFunc(jsonFieldName)
		registerErr = v.RegisterValidation(TagNotBlank, validators.NotBlank)
	})
	return registerErr
}

// jsonFieldName はエラーメッセージ用にJSONタグのフィールド名を返す。
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	default:
		return name
	}
}

// Messages は検証エラーをフィールド単位のメッセージ一覧に変換する。
// 違反はすべて含め、構造体のフィールド順に並べる。
// 検証エラー以外（JSONの構文エラーなど）は1件のメッセージにまとめる。
func Messages(err error) []string {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{"request body is malformed"}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, message(fe))
	}
	return msgs
}

// message は1件の検証エラーを文章にする。
func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case TagNotBlank:
		return fmt.Sprintf("%s must not be blank", field)
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed on the '%s' rule", field, fe.Tag())
	}
}
