package introspect

import "context"

// FirstValid は複数のValidatorを順に試し、最初に有効と判定された結果を返すValidatorを生成する。
// すべて無効の場合、1つでも到達不能があればUnavailableを、そうでなければInvalidを返す。
func FirstValid(validators ...Validator) Validator {
	return chain(validators)
}

type chain []Validator

func (c chain) Validate(ctx context.Context, token string) Result {
	result := Invalid()
	for _, v := range c {
		r := v.Validate(ctx, token)
		if r.IsValid() {
			return r
		}
		if r.Status == StatusUpstreamUnavailable {
			result = r
		}
	}
	return result
}
