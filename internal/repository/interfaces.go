// Package repository はデータ永続化のインターフェースと実装を定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/campustaxi/internal/model"
)

// UserRepository はアカウントデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// メールアドレスが既に存在する場合は model.ErrCodeEmailExists の APIError を返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレス（大文字小文字を区別する完全一致）でユーザーを取得する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)
}

// SessionStore は有効期限付きのセッションレコードを保持するストア。
// キーは不透明なセッショントークン、値は model.SessionIdentity。
type SessionStore interface {
	// Create はトークンに対してセッションレコードをTTL付きで書き込む。
	Create(ctx context.Context, token string, identity model.SessionIdentity, ttl time.Duration) error

	// Find はトークンに対応するセッションレコードを取得する。
	// 存在しない・期限切れの場合はnilを返す。
	Find(ctx context.Context, token string) (*model.SessionIdentity, error)

	// Delete はトークンに対応するセッションレコードを削除する。存在しなくてもエラーにしない。
	Delete(ctx context.Context, token string) error
}

// RoomRepository はルームデータの永続化インターフェース。
// 参加者集合の変更はすべて単一行に対するアトミックな条件付き更新で行う。
type RoomRepository interface {
	// Create はルームを作成する。
	Create(ctx context.Context, room *model.Room) error

	// FindByID は指定IDのルームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Room, error)

	// Find は条件に一致するルームを出発時刻の昇順で返す。
	Find(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)

	// AddParticipantIfVacant は「未参加かつ定員未満」の場合に限り参加者を追加する。
	// 判定と追加はストア側で1回の更新として実行される。
	// 条件を満たさなかった場合（ルームが存在しない場合を含む）はnilを返す。
	AddParticipantIfVacant(ctx context.Context, roomID, userID string) (*model.Room, error)

	// RemoveParticipant は参加者を削除する。参加していない場合は何も変更しない。
	// ホスト自身は削除されない: userIDがホストの場合とルームが存在しない場合はnilを返す。
	RemoveParticipant(ctx context.Context, roomID, userID string) (*model.Room, error)
}

// Pinger は接続確認のインターフェース。ヘルスチェックで使用する。
type Pinger interface {
	PingContext(ctx context.Context) error
}
