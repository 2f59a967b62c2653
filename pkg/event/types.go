// Package event はCRMから受信するWebhookイベントの型を定義する。
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap/zapcore"
)

// SubscriptionType はWebhookの購読種別を表す。
type SubscriptionType string

const (
	// SubscriptionContactCreation は連絡先が作成されたことを表す。
	SubscriptionContactCreation SubscriptionType = "contact.creation"
	// SubscriptionContactDeletion は連絡先が削除されたことを表す。
	SubscriptionContactDeletion SubscriptionType = "contact.deletion"
	// SubscriptionContactPropertyChange は連絡先のプロパティが変更されたことを表す。
	SubscriptionContactPropertyChange SubscriptionType = "contact.propertyChange"
	// SubscriptionContactMerge は連絡先が統合されたことを表す。
	SubscriptionContactMerge SubscriptionType = "contact.merge"
	// SubscriptionContactRestore は削除された連絡先が復元されたことを表す。
	SubscriptionContactRestore SubscriptionType = "contact.restore"
	// SubscriptionContactPrivacyDeletion はプライバシー要求により連絡先が削除されたことを表す。
	SubscriptionContactPrivacyDeletion SubscriptionType = "contact.privacyDeletion"
	// SubscriptionContactAssociationChange は連絡先の関連付けが変更されたことを表す。
	SubscriptionContactAssociationChange SubscriptionType = "contact.associationChange"
)

// ContactEvent はCRMが送信する連絡先イベント1件。
type ContactEvent struct {
	EventID          int64            `json:"eventId"`
	SubscriptionID   int64            `json:"subscriptionId"`
	PortalID         int64            `json:"portalId"`
	AppID            int64            `json:"appId"`
	OccurredAt       int64            `json:"occurredAt"`
	SubscriptionType SubscriptionType `json:"subscriptionType"`
	AttemptNumber    int64            `json:"attemptNumber"`
	ObjectID         int64            `json:"objectId"`
	ChangeFlag       string           `json:"changeFlag,omitempty"`
	ChangeSource     string           `json:"changeSource,omitempty"`
	SourceID         FlexibleID       `json:"sourceId,omitempty"`
	PropertyName     string           `json:"propertyName,omitempty"`
	PropertyValue    string           `json:"propertyValue,omitempty"`
}

// OccurredTime はイベントの発生時刻を返す。OccurredAtはミリ秒単位のUNIX時刻。
func (e ContactEvent) OccurredTime() time.Time {
	return time.UnixMilli(e.OccurredAt).UTC()
}

// MarshalLogObject はzapのログフィールドとしてイベントを出力する。
func (e ContactEvent) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt64("eventId", e.EventID)
	enc.AddInt64("subscriptionId", e.SubscriptionID)
	enc.AddInt64("portalId", e.PortalID)
	enc.AddInt64("appId", e.AppID)
	enc.AddInt64("occurredAt", e.OccurredAt)
	enc.AddString("subscriptionType", string(e.SubscriptionType))
	enc.AddInt64("attemptNumber", e.AttemptNumber)
	enc.AddInt64("objectId", e.ObjectID)
	if e.ChangeFlag != "" {
		enc.AddString("changeFlag", e.ChangeFlag)
	}
	if e.ChangeSource != "" {
		enc.AddString("changeSource", e.ChangeSource)
	}
	if e.SourceID != "" {
		enc.AddString("sourceId", string(e.SourceID))
	}
	if e.PropertyName != "" {
		enc.AddString("propertyName", e.PropertyName)
	}
	return nil
}

// FlexibleID は数値と文字列のどちらで送られても受け付けるID。
// sourceIdは変更元によって"userId:123"のような文字列になる。
type FlexibleID string

// UnmarshalJSON は数値または文字列のJSONを読み取る。
func (id *FlexibleID) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = FlexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("IDは数値または文字列である必要があります: %s", b)
	}
	*id = FlexibleID(n.String())
	return nil
}

// Record は受信したイベントにゲートウェイが採番したIDと受信時刻を付けたもの。
// Webhookの保存先にはこの単位で渡す。
type Record struct {
	// ID はゲートウェイが採番した一意識別子（UUID）。
	ID string `json:"id"`
	// ReceivedAt はゲートウェイが受信した時刻。
	ReceivedAt time.Time `json:"receivedAt"`
	// Event は受信したイベント。
	Event ContactEvent `json:"event"`
	// Raw は受信したJSONそのもの。未知のフィールドも保持する。
	Raw json.RawMessage `json:"-"`
}
