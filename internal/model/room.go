package model

import (
	"math"
	"slices"
	"time"
)

// ルームの入力値の上限。rooms テーブルのカラム幅と一致させること。
const (
	// MaxRoomTextLength はタイトル・出発地・目的地の最大文字数。
	MaxRoomTextLength = 200
	// MaxPassengerLimit は定員の最大値（INTEGER カラムの上限）。
	MaxPassengerLimit = math.MaxInt32
)

// Room は相乗りタクシーの募集（ルーム）を表す。
//
// 不変条件:
//   - len(Participants) <= MaxPassenger
//   - HostID は作成時から常に Participants に含まれる
//   - Participants に重複はない
//   - MaxPassenger は作成後に変更されない
type Room struct {
	ID            string
	Title         string
	Departure     string
	Destination   string
	DepartureTime time.Time
	MaxPassenger  int
	HostID        string
	HostName      string
	Participants  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsFull は参加者数が定員に達しているかを返す。
func (r *Room) IsFull() bool {
	return len(r.Participants) >= r.MaxPassenger
}

// IsMember は指定ユーザーが参加者に含まれるかを返す。
func (r *Room) IsMember(userID string) bool {
	return slices.Contains(r.Participants, userID)
}

// IsHost は指定ユーザーがホストかを返す。
func (r *Room) IsHost(userID string) bool {
	return r.HostID == userID
}

// RoomFilter はルーム一覧の検索条件。
// 空文字列のフィールドは条件に含めない。
type RoomFilter struct {
	// DepartureContains は出発地の部分一致（大文字小文字を区別しない）。
	DepartureContains string
	// DestinationContains は目的地の部分一致（大文字小文字を区別しない）。
	DestinationContains string
	// ParticipantID はホストまたは参加者として含まれるユーザーID。
	ParticipantID string
}

// CreateRoomInput はルーム作成の入力値。
// DepartureTime はクライアントから受け取った文字列のまま保持し、サービス層で検証する。
// MaxPassenger が nil の場合は未入力として扱う。
type CreateRoomInput struct {
	Title         string
	Departure     string
	Destination   string
	DepartureTime string
	MaxPassenger  *int
}
