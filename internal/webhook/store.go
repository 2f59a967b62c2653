package webhook

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/crmgate/pkg/event"
	"github.com/nao1215/crmgate/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	// DefaultRecentLimit はRecentで件数を指定しなかった場合の取得件数。
	DefaultRecentLimit = 50
	// MaxRecentLimit はRecentで取得できる最大件数。
	MaxRecentLimit = 500
)

// Store はWebhookイベントをSQLiteに保存するSink。
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// OpenStore はpathのSQLiteファイルを開き、マイグレーションを適用したStoreを返す。
// pathに":memory:"を指定するとインメモリデータベースを使用する。
func OpenStore(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)

	s, err := NewStore(ctx, db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore は接続済みのdbにマイグレーションを適用したStoreを返す。
func NewStore(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Store, error) {
	if _, err := migration.Run(ctx, db, migrations, "migrations", logger); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Record はイベントを1行として保存する。
// 再送されたイベントも受信ごとに別の行として保存する。
func (s *Store) Record(ctx context.Context, r *event.Record) error {
	payload := r.Raw
	if len(payload) == 0 {
		b, err := json.Marshal(r.Event)
		if err != nil {
			return fmt.Errorf("イベントのシリアライズに失敗: %w", err)
		}
		payload = b
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_events
			(id, event_id, portal_id, subscription_type, object_id, attempt_number, occurred_at, received_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Event.EventID, r.Event.PortalID, string(r.Event.SubscriptionType), r.Event.ObjectID,
		r.Event.AttemptNumber, r.Event.OccurredAt, r.ReceivedAt.UnixNano(), string(payload),
	)
	if err != nil {
		return fmt.Errorf("Webhookイベントの保存に失敗: %w", err)
	}
	return nil
}

// Recent は受信時刻の新しい順にlimit件のイベントを返す。
// limitが0以下の場合はDefaultRecentLimit件、MaxRecentLimitを超える場合はMaxRecentLimit件とする。
func (s *Store) Recent(ctx context.Context, limit int) ([]*event.Record, error) {
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, received_at, payload
		FROM webhook_events
		ORDER BY received_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("Webhookイベントの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]*event.Record, 0, limit)
	for rows.Next() {
		var (
			id         string
			receivedAt int64
			payload    string
		)
		if err := rows.Scan(&id, &receivedAt, &payload); err != nil {
			return nil, fmt.Errorf("Webhookイベントの読み取りに失敗: %w", err)
		}

		r := &event.Record{
			ID:         id,
			ReceivedAt: time.Unix(0, receivedAt).UTC(),
			Raw:        json.RawMessage(payload),
		}
		if err := json.Unmarshal(r.Raw, &r.Event); err != nil {
			s.logger.Warn("保存済みイベントの解釈に失敗", zap.String("record_id", id), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
