package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotArray はWebhookのボディがJSON配列でないことを表す。
var ErrNotArray = errors.New("Webhookのボディは配列である必要があります")

// NewRecord はイベントを受信時刻receivedAtのRecordにする。
func NewRecord(e ContactEvent, raw json.RawMessage, receivedAt time.Time) *Record {
	return &Record{
		ID:         uuid.New().String(),
		ReceivedAt: receivedAt.UTC(),
		Event:      e,
		Raw:        raw,
	}
}

// DecodeBatch はWebhookのボディ（イベントの配列）をRecordの一覧に変換する。
// 1件でも解釈できない要素があればエラーを返し、Recordは返さない。
func DecodeBatch(body []byte, receivedAt time.Time) ([]*Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, ErrNotArray
	}

	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, fmt.Errorf("Webhookボディのデシリアライズに失敗: %w", err)
	}

	records := make([]*Record, 0, len(raws))
	for i, raw := range raws {
		var e ContactEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("%d件目のイベントのデシリアライズに失敗: %w", i, err)
		}
		records = append(records, NewRecord(e, raw, receivedAt))
	}
	return records, nil
}
