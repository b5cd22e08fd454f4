// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, room, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest       = "INVALID_REQUEST"
	ErrCodeMissingFields        = "MISSING_FIELDS"
	ErrCodeInvalidDepartureTime = "INVALID_DEPARTURE_TIME"
	ErrCodeInvalidMaxPassenger  = "INVALID_MAX_PASSENGER"
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeSessionExpired       = "SESSION_EXPIRED"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeRoomNotFound         = "ROOM_NOT_FOUND"
	ErrCodeUserNotFound         = "USER_NOT_FOUND"
	ErrCodeEmailExists          = "EMAIL_EXISTS"
	ErrCodeRoomFull             = "ROOM_FULL"
	ErrCodeHostCannotLeave      = "HOST_CANNOT_LEAVE"
	ErrCodeJoinConflict         = "JOIN_CONFLICT"
	ErrCodeCSRFTokenInvalid     = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewMissingFieldsError は必須項目が不足している場合のエラーを生成する。
func NewMissingFieldsError(fields []string) *APIError {
	return &APIError{
		Code:     ErrCodeMissingFields,
		Message:  fmt.Sprintf("必須項目が入力されていません: %v", fields),
		Category: "validation",
		Action:   "すべての必須項目を入力してください。",
	}
}

// NewFieldTooLongError は入力値が上限長を超えている場合のエラーを生成する。
// unitは上限の単位（"文字" または "バイト"）。
func NewFieldTooLongError(field string, limit int, unit string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("%s が長すぎます（上限 %d %s）。", field, limit, unit),
		Category: "validation",
		Action:   "入力を短くしてから再度お試しください。",
	}
}

// NewInvalidDepartureTimeError は出発時刻が解析できない場合のエラーを生成する。
func NewInvalidDepartureTimeError(value string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDepartureTime,
		Message:  fmt.Sprintf("出発時刻の形式が正しくありません: %s", value),
		Category: "validation",
		Action:   "出発時刻はISO 8601形式（例: 2025-11-15T10:00:00Z）で指定してください。",
	}
}

// NewInvalidMaxPassengerError は定員が正の整数でない場合のエラーを生成する。
// valueにはクライアントが送信した値をそのまま渡す。
func NewInvalidMaxPassengerError(value any) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidMaxPassenger,
		Message:  fmt.Sprintf("定員が正しくありません: %v", value),
		Category: "validation",
		Action:   "定員には1以上の整数を指定してください。",
	}
}

// NewUnauthenticatedError はセッショントークンが提示されていない場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewSessionExpiredError はセッションが見つからない場合のエラーを生成する。
// 期限切れと不正なトークンは区別しない。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションが無効または期限切れです。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidCredentialsError はメールアドレスまたはパスワードが一致しない場合のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認してください。",
	}
}

// NewRoomNotFoundError はルームが見つからない場合のエラーを生成する。
func NewRoomNotFoundError(roomID string) *APIError {
	return &APIError{
		Code:     ErrCodeRoomNotFound,
		Message:  fmt.Sprintf("指定されたルームが見つかりません: %s", roomID),
		Category: "room",
		Action:   "ルーム一覧を更新してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewEmailExistsError はメールアドレスが既に登録されている場合のエラーを生成する。
func NewEmailExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailExists,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "auth",
		Action:   "ログインするか、別のメールアドレスを使用してください。",
	}
}

// NewRoomFullError はルームが定員に達している場合のエラーを生成する。
func NewRoomFullError(maxPassenger int) *APIError {
	return &APIError{
		Code:     ErrCodeRoomFull,
		Message:  fmt.Sprintf("ルームが定員（%d人）に達しています。", maxPassenger),
		Category: "room",
		Action:   "別のルームを選択するか、新しいルームを作成してください。",
	}
}

// NewHostCannotLeaveError はホストが自分のルームから退出しようとした場合のエラーを生成する。
func NewHostCannotLeaveError() *APIError {
	return &APIError{
		Code:     ErrCodeHostCannotLeave,
		Message:  "ホストは自分のルームから退出できません。",
		Category: "room",
		Action:   "ルームのホストは最後まで参加者として残ります。",
	}
}

// NewJoinConflictError は同時更新が続いて参加を確定できなかった場合のエラーを生成する。
// ストア障害ではなく、再試行で成功しうる競合を表す。
func NewJoinConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeJoinConflict,
		Message:  "他の参加・退出と競合したため参加できませんでした。",
		Category: "room",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewCSRFTokenInvalidError はCSRFトークンの検証に失敗した場合のエラーを生成する。
func NewCSRFTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFTokenInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
