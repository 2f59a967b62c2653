// Package webhook はCRMから受信したWebhookイベントの記録先を提供する。
//
// LogSinkは1イベントにつき1件の構造化ログを出力する。
// StoreはSQLiteにイベントを保存し、最近受信したイベントを参照できるようにする。
// MultiSinkで複数の記録先に同じイベントを渡せる。
package webhook
