package handler

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/campustaxi/internal/middleware"
	"github.com/hitoshi/campustaxi/internal/model"
)

// RoomServiceInterface はルームハンドラーが必要とするサービスインターフェース。
type RoomServiceInterface interface {
	Create(ctx context.Context, caller model.SessionIdentity, in model.CreateRoomInput) (*model.Room, error)
	Join(ctx context.Context, callerID, roomID string) (*model.Room, error)
	Leave(ctx context.Context, callerID, roomID string) (*model.Room, error)
	Find(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error)
	FindByID(ctx context.Context, roomID string) (*model.Room, error)
}

// RoomHandler はルーム関連のHTTPハンドラー。
type RoomHandler struct {
	service RoomServiceInterface
}

// NewRoomHandler はRoomHandlerを生成する。
func NewRoomHandler(service RoomServiceInterface) *RoomHandler {
	return &RoomHandler{service: service}
}

// createRoomRequest はルーム作成リクエスト。
// maxPassenger はフォームから文字列で送られることがあるため any で受ける。
type createRoomRequest struct {
	Title         string `json:"title"`
	Departure     string `json:"departure"`
	Destination   string `json:"destination"`
	DepartureTime string `json:"departureTime"`
	MaxPassenger  any    `json:"maxPassenger"`
}

// roomResponse はルームのAPIレスポンス。
type roomResponse struct {
	ID            string    `json:"_id"`
	Title         string    `json:"title"`
	Departure     string    `json:"departure"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departureTime"`
	MaxPassenger  int       `json:"maxPassenger"`
	HostID        string    `json:"hostId"`
	HostName      string    `json:"hostName"`
	Participants  []string  `json:"participants"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type roomListResponse struct {
	Rooms []roomResponse `json:"rooms"`
}

// List は条件に一致するルームを出発時刻順に返す。認証不要。
// GET /rooms?departure=&destination=&participant=
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rooms, err := h.service.Find(r.Context(), model.RoomFilter{
		DepartureContains:   q.Get("departure"),
		DestinationContains: q.Get("destination"),
		ParticipantID:       q.Get("participant"),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := roomListResponse{Rooms: make([]roomResponse, len(rooms))}
	for i, room := range rooms {
		resp.Rooms[i] = toRoomResponse(room)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get はルームを1件返す。認証不要。
// GET /rooms/{id}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.service.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(room))
}

// Create はログインユーザーをホストとするルームを作成する。
// POST /rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	var req createRoomRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	maxPassenger, err := parseMaxPassenger(req.MaxPassenger)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	room, err := h.service.Create(r.Context(), caller, model.CreateRoomInput{
		Title:         req.Title,
		Departure:     req.Departure,
		Destination:   req.Destination,
		DepartureTime: req.DepartureTime,
		MaxPassenger:  maxPassenger,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toRoomResponse(room))
}

// Join はログインユーザーをルームに参加させる。
// POST /rooms/{id}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Join)
}

// Leave はログインユーザーをルームから退出させる。
// POST /rooms/{id}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.service.Leave)
}

// mutate は参加・退出の共通処理。
func (h *RoomHandler) mutate(w http.ResponseWriter, r *http.Request,
	op func(ctx context.Context, callerID, roomID string) (*model.Room, error),
) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
		return
	}

	room, err := op(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoomResponse(room))
}

// parseMaxPassenger はJSONの定員値を整数に変換する。
// 未指定・null・空文字列はnil（未入力）、整数として解釈できない値は INVALID_MAX_PASSENGER。
func parseMaxPassenger(v any) (*int, error) {
	switch n := v.(type) {
	case nil:
		return nil, nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
			return nil, model.NewInvalidMaxPassengerError(n)
		}
		i := int(n)
		return &i, nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		// 数値の場合と同じくINTEGERカラムに収まる範囲に限る
		parsed, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, model.NewInvalidMaxPassengerError(n)
		}
		i := int(parsed)
		return &i, nil
	default:
		return nil, model.NewInvalidMaxPassengerError(v)
	}
}

func toRoomResponse(room *model.Room) roomResponse {
	participants := room.Participants
	if participants == nil {
		participants = []string{}
	}
	return roomResponse{
		ID:            room.ID,
		Title:         room.Title,
		Departure:     room.Departure,
		Destination:   room.Destination,
		DepartureTime: room.DepartureTime,
		MaxPassenger:  room.MaxPassenger,
		HostID:        room.HostID,
		HostName:      room.HostName,
		Participants:  participants,
		CreatedAt:     room.CreatedAt,
		UpdatedAt:     room.UpdatedAt,
	}
}
