// Package model はドメインモデルを定義する。
package model

import "time"

// アカウントの入力値の上限。users テーブルのカラム幅と一致させること。
const (
	// MaxEmailLength はメールアドレスの最大文字数。
	MaxEmailLength = 320
	// MaxNameLength は表示名の最大文字数。
	MaxNameLength = 100
	// MaxPasswordBytes はパスワードの最大バイト数（bcryptの入力上限）。
	MaxPasswordBytes = 72
)

// User はサービス利用ユーザー（アカウント）を表す。
// サインアップ時に一度だけ作成され、以降は変更されない。
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Name         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SessionIdentity はセッションストアに保存されるセッションレコード。
// auth サービスが書き込み、room サービスが検証時に読み取る唯一の共有フォーマット。
// 保存時のJSONは {"userId": "...", "name": "..."} となる。
type SessionIdentity struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Session は発行済みセッションを表す。
// Tokenはクライアントに sid Cookie として渡される不透明な値。
type Session struct {
	Token     string
	Identity  SessionIdentity
	ExpiresAt time.Time
	CreatedAt time.Time
}
