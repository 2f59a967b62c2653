// Package httpclient はCRM APIへのHTTP通信を行うクライアントを提供する。
//
// JSON/フォーム形式のリクエスト送信と、2xx以外の応答をStatusErrorとして
// 返す処理を共通化する。送信するリクエストには、リクエストスコープの
// トークンをAuthorizationヘッダーとして付与するAuthTransportが適用される。
package httpclient
