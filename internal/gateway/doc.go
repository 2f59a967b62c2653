// Package gateway はCRM連携ゲートウェイのHTTPサーバーを提供する。
//
// OAuth2認可コードフローの開始とコールバック、CRM連絡先の一覧と作成、
// CRMからのWebhook受信を担当する。連絡先APIはベアラートークンの検証を必須とし、
// 連絡先の作成はプロセス全体で共有するトークンバケットで流量を制限する。
// 検証済みのトークンはリクエストのコンテキストに格納され、CRM呼び出し時に付与される。
package gateway
