// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// ベアラートークンの検証とリクエストスコープへの格納、共有バケットによるレート制限、
// リクエストログ、パニックリカバリ、CORS設定を含む。
// 拒否時のレスポンスはすべてapierrorのエンベロープ形式で返す。
package middleware
