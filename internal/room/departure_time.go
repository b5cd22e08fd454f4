package room

import (
	"errors"
	"time"

	"github.com/hitoshi/campustaxi/internal/model"
)

// departureTimeLayouts は出発時刻として受け付ける書式。
// タイムゾーンを含まない書式（HTMLのdatetime-local入力）はUTCとして解釈する。
var departureTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ParseDepartureTime は出発時刻の文字列を時刻に変換する。
// 返す値はUTC・マイクロ秒精度に正規化される。
func ParseDepartureTime(raw string) (time.Time, error) {
	for _, layout := range departureTimeLayouts {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC().Truncate(time.Microsecond), nil
		}
	}
	return time.Time{}, errors.New("unrecognized departure time format")
}

// isNotFound はエラーが ROOM_NOT_FOUND かを返す。
func isNotFound(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeRoomNotFound
}
