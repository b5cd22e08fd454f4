// Package room はルームの作成・参加・退出・検索のドメインロジックを提供する。
//
// Engine はリクエスト間でルームの状態をキャッシュしない。すべての操作は
// ストアの現在値を読み直してから行い、参加者集合の変更はストア側の
// 条件付き単一更新（RoomRepository.AddParticipantIfVacant / RemoveParticipant）で行う。
package room

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/campustaxi/internal/model"
	"github.com/hitoshi/campustaxi/internal/repository"
)

// JoinFullPolicy は満員のルームへの参加要求の扱い。
type JoinFullPolicy string

const (
	// JoinFullReject は ROOM_FULL エラーを返す。
	JoinFullReject JoinFullPolicy = "reject"
	// JoinFullIgnore は変更されていないルームをそのまま成功として返す。
	JoinFullIgnore JoinFullPolicy = "ignore"
)

// ParseJoinFullPolicy は設定値をJoinFullPolicyに変換する。空文字列はJoinFullReject。
func ParseJoinFullPolicy(s string) (JoinFullPolicy, error) {
	switch JoinFullPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", JoinFullReject:
		return JoinFullReject, nil
	case JoinFullIgnore:
		return JoinFullIgnore, nil
	default:
		return "", fmt.Errorf("unknown join full policy: %q", s)
	}
}

// maxJoinAttempts は条件付き更新が競合で不成立だった場合に読み直す上限回数。
const maxJoinAttempts = 3

// 参加・退出のメトリクスラベル。
const (
	JoinOutcomeJoined        = "joined"
	JoinOutcomeAlreadyMember = "already_member"
	JoinOutcomeFull          = "full"
	JoinOutcomeNotFound      = "not_found"
	JoinOutcomeConflict      = "conflict"

	LeaveOutcomeLeft         = "left"
	LeaveOutcomeNotMember    = "not_member"
	LeaveOutcomeHostRejected = "host_rejected"
	LeaveOutcomeNotFound     = "not_found"
)

// TextSanitizer は自由記述テキストのサニタイズインターフェース。
type TextSanitizer interface {
	Sanitize(raw string) string
}

// Recorder はルーム操作のメトリクス記録インターフェース。
type Recorder interface {
	RecordRoomCreated()
	RecordJoin(outcome string)
	RecordLeave(outcome string)
}

// Engine はルームのメンバーシップを管理する。
type Engine struct {
	repo      repository.RoomRepository
	sanitizer TextSanitizer
	policy    JoinFullPolicy
	recorder  Recorder
	now       func() time.Time
}

// NewEngine はEngineを生成する。sanitizerとrecorderはnilでもよい。
func NewEngine(repo repository.RoomRepository, sanitizer TextSanitizer, policy JoinFullPolicy, recorder Recorder) *Engine {
	if policy == "" {
		policy = JoinFullReject
	}
	return &Engine{
		repo:      repo,
		sanitizer: sanitizer,
		policy:    policy,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Policy は満員時の参加ポリシーを返す。
func (e *Engine) Policy() JoinFullPolicy {
	return e.policy
}

// Create はcallerをホストかつ唯一の参加者とするルームを作成する。
func (e *Engine) Create(ctx context.Context, caller model.SessionIdentity, in model.CreateRoomInput) (*model.Room, error) {
	if caller.UserID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	title := e.sanitize(in.Title)
	departure := e.sanitize(in.Departure)
	destination := e.sanitize(in.Destination)
	rawTime := strings.TrimSpace(in.DepartureTime)

	var missing []string
	if title == "" {
		missing = append(missing, "title")
	}
	if departure == "" {
		missing = append(missing, "departure")
	}
	if destination == "" {
		missing = append(missing, "destination")
	}
	if rawTime == "" {
		missing = append(missing, "departureTime")
	}
	if in.MaxPassenger == nil {
		missing = append(missing, "maxPassenger")
	}
	if len(missing) > 0 {
		return nil, model.NewMissingFieldsError(missing)
	}

	for _, f := range []struct{ name, value string }{
		{"title", title},
		{"departure", departure},
		{"destination", destination},
	} {
		if utf8.RuneCountInString(f.value) > model.MaxRoomTextLength {
			return nil, model.NewFieldTooLongError(f.name, model.MaxRoomTextLength, "文字")
		}
	}

	maxPassenger := *in.MaxPassenger
	if maxPassenger < 1 || maxPassenger > model.MaxPassengerLimit {
		return nil, model.NewInvalidMaxPassengerError(maxPassenger)
	}

	departureTime, err := ParseDepartureTime(rawTime)
	if err != nil {
		return nil, model.NewInvalidDepartureTimeError(rawTime)
	}

	// PostgreSQLのtimestamptzはマイクロ秒精度なので、作成直後の値と読み直した値を一致させる
	now := e.now().UTC().Truncate(time.Microsecond)
	room := &model.Room{
		ID:            uuid.NewString(),
		Title:         title,
		Departure:     departure,
		Destination:   destination,
		DepartureTime: departureTime,
		MaxPassenger:  maxPassenger,
		HostID:        caller.UserID,
		HostName:      caller.Name,
		Participants:  []string{caller.UserID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := e.repo.Create(ctx, room); err != nil {
		return nil, fmt.Errorf("ルームの作成に失敗しました: %w", err)
	}

	if e.recorder != nil {
		e.recorder.RecordRoomCreated()
	}
	slog.Info("room created",
		slog.String("room_id", room.ID),
		slog.String("host_id", room.HostID),
		slog.Int("max_passenger", room.MaxPassenger),
	)
	return room, nil
}

// Join はcallerをルームの参加者に追加する。
//   - 既に参加者の場合は現在のルームをそのまま返す（冪等）
//   - 満員の場合はポリシーに従い ROOM_FULL を返すか、現在のルームを返す
//   - それ以外は「未参加かつ定員未満」を条件とする単一更新で追加する
//
// 条件付き更新が不成立だった場合は、読み取り後に他のリクエストが状態を変えたことを意味するので
// 読み直して判定をやり直す。maxJoinAttempts 回続けて不成立の場合は JOIN_CONFLICT を返す。
func (e *Engine) Join(ctx context.Context, callerID, roomID string) (*model.Room, error) {
	if callerID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		room, err := e.load(ctx, roomID)
		if err != nil {
			e.recordJoinError(err)
			return nil, err
		}

		if room.IsMember(callerID) {
			e.recordJoin(JoinOutcomeAlreadyMember)
			return room, nil
		}
		if room.IsFull() {
			e.recordJoin(JoinOutcomeFull)
			if e.policy == JoinFullIgnore {
				return room, nil
			}
			return nil, model.NewRoomFullError(room.MaxPassenger)
		}

		updated, err := e.repo.AddParticipantIfVacant(ctx, roomID, callerID)
		if err != nil {
			return nil, fmt.Errorf("ルームへの参加に失敗しました: %w", err)
		}
		if updated != nil {
			e.recordJoin(JoinOutcomeJoined)
			slog.Info("room joined",
				slog.String("room_id", roomID),
				slog.String("user_id", callerID),
				slog.Int("participants", len(updated.Participants)),
			)
			return updated, nil
		}

		slog.Debug("join condition changed concurrently, re-reading room",
			slog.String("room_id", roomID),
			slog.Int("attempt", attempt+1),
		)
	}

	e.recordJoin(JoinOutcomeConflict)
	slog.Warn("join gave up after concurrent updates",
		slog.String("room_id", roomID),
		slog.Int("attempts", maxJoinAttempts),
	)
	return nil, model.NewJoinConflictError()
}

// Leave はcallerをルームの参加者から外す。
// 参加していない場合は何もせず現在のルームを返す（冪等）。
// ホストは退出できず HOST_CANNOT_LEAVE を返す。
func (e *Engine) Leave(ctx context.Context, callerID, roomID string) (*model.Room, error) {
	if callerID == "" {
		return nil, model.NewUnauthenticatedError()
	}

	room, err := e.load(ctx, roomID)
	if err != nil {
		if isNotFound(err) {
			e.recordLeave(LeaveOutcomeNotFound)
		}
		return nil, err
	}
	if room.IsHost(callerID) {
		e.recordLeave(LeaveOutcomeHostRejected)
		return nil, model.NewHostCannotLeaveError()
	}
	wasMember := room.IsMember(callerID)

	updated, err := e.repo.RemoveParticipant(ctx, roomID, callerID)
	if err != nil {
		return nil, fmt.Errorf("ルームからの退出に失敗しました: %w", err)
	}
	if updated == nil {
		// ホストは作成後に変わらないので、ここに来るのは読み取り後に削除された場合のみ
		e.recordLeave(LeaveOutcomeNotFound)
		return nil, model.NewRoomNotFoundError(roomID)
	}

	if wasMember {
		e.recordLeave(LeaveOutcomeLeft)
		slog.Info("room left",
			slog.String("room_id", roomID),
			slog.String("user_id", callerID),
			slog.Int("participants", len(updated.Participants)),
		)
	} else {
		e.recordLeave(LeaveOutcomeNotMember)
	}
	return updated, nil
}

// Find は条件に一致するルームを出発時刻の昇順で返す。
func (e *Engine) Find(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	filter = model.RoomFilter{
		DepartureContains:   strings.TrimSpace(filter.DepartureContains),
		DestinationContains: strings.TrimSpace(filter.DestinationContains),
		ParticipantID:       strings.TrimSpace(filter.ParticipantID),
	}

	rooms, err := e.repo.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("ルーム一覧の取得に失敗しました: %w", err)
	}
	if rooms == nil {
		rooms = []*model.Room{}
	}
	return rooms, nil
}

// FindByID は指定IDのルームを返す。存在しない場合は ROOM_NOT_FOUND を返す。
func (e *Engine) FindByID(ctx context.Context, roomID string) (*model.Room, error) {
	return e.load(ctx, roomID)
}

// load はルームの現在値をストアから読み直す。
// UUIDとして解釈できないIDはストアに問い合わせず ROOM_NOT_FOUND とする。
func (e *Engine) load(ctx context.Context, roomID string) (*model.Room, error) {
	if _, err := uuid.Parse(roomID); err != nil {
		return nil, model.NewRoomNotFoundError(roomID)
	}

	room, err := e.repo.FindByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("ルームの取得に失敗しました: %w", err)
	}
	if room == nil {
		return nil, model.NewRoomNotFoundError(roomID)
	}
	return room, nil
}

func (e *Engine) sanitize(raw string) string {
	if e.sanitizer == nil {
		return strings.TrimSpace(raw)
	}
	return e.sanitizer.Sanitize(raw)
}

func (e *Engine) recordJoin(outcome string) {
	if e.recorder != nil {
		e.recorder.RecordJoin(outcome)
	}
}

func (e *Engine) recordJoinError(err error) {
	if isNotFound(err) {
		e.recordJoin(JoinOutcomeNotFound)
	}
}

func (e *Engine) recordLeave(outcome string) {
	if e.recorder != nil {
		e.recorder.RecordLeave(outcome)
	}
}
