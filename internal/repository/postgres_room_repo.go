package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/campustaxi/internal/model"
)

// roomColumns はSELECT/RETURNINGで使用するroomsテーブルのカラム一覧。
// scanRoom の引数順と一致させること。
const roomColumns = `id, title, departure, destination, departure_time, max_passenger,
	host_id, host_name, participants, created_at, updated_at`

// rowScanner は *sql.Row と *sql.Rows の共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresRoomRepo はPostgreSQLを使用したルームリポジトリ。
// participants は TEXT[] として保持し、集合操作はすべて1文のUPDATEで行う。
type PostgresRoomRepo struct {
	db *sql.DB
}

// NewPostgresRoomRepo はPostgresRoomRepoを生成する。
func NewPostgresRoomRepo(db *sql.DB) *PostgresRoomRepo {
	return &PostgresRoomRepo{db: db}
}

// Create はルームを作成する。
func (r *PostgresRoomRepo) Create(ctx context.Context, room *model.Room) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (id, title, departure, destination, departure_time, max_passenger,
		                    host_id, host_name, participants, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		room.ID, room.Title, room.Departure, room.Destination, room.DepartureTime, room.MaxPassenger,
		room.HostID, room.HostName, pq.Array(room.Participants), room.CreatedAt, room.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert room: %w", err)
	}
	return nil
}

// FindByID は指定IDのルームを取得する。見つからない場合はnilを返す。
func (r *PostgresRoomRepo) FindByID(ctx context.Context, id string) (*model.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find room by ID: %w", err)
	}
	return room, nil
}

// Find は条件に一致するルームを出発時刻の昇順で返す。
// 出発地・目的地はILIKEによる部分一致、参加者はホストまたは参加者配列のいずれかで判定する。
func (r *PostgresRoomRepo) Find(ctx context.Context, filter model.RoomFilter) ([]*model.Room, error) {
	query, args := buildFindRoomsQuery(filter)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]*model.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan room: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rooms: %w", err)
	}

	return rooms, nil
}

// AddParticipantIfVacant は「未参加かつ定員未満」の場合に限り参加者を追加する。
// 条件判定と追加は同一のUPDATE文で行われ、同一行への同時更新は行ロックで直列化される。
// READ COMMITTEDでは後続のUPDATEはロック解放後に最新の行でWHERE句を再評価するため、
// 定員を超える追加は起こらない。
func (r *PostgresRoomRepo) AddParticipantIfVacant(ctx context.Context, roomID, userID string) (*model.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx,
		`UPDATE rooms
		 SET participants = array_append(participants, $2::text),
		     updated_at = now()
		 WHERE id = $1
		   AND NOT ($2::text = ANY(participants))
		   AND cardinality(participants) < max_passenger
		 RETURNING `+roomColumns,
		roomID, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to add participant: %w", err)
	}
	return room, nil
}

// RemoveParticipant は参加者を削除する。
// host_id との比較をWHERE句に含めることで、ホストが参加者集合から外れることはない。
// 参加していないユーザーの場合は集合もupdated_atも変化しない。
func (r *PostgresRoomRepo) RemoveParticipant(ctx context.Context, roomID, userID string) (*model.Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx,
		`UPDATE rooms
		 SET participants = array_remove(participants, $2::text),
		     updated_at = CASE WHEN $2::text = ANY(participants) THEN now() ELSE updated_at END
		 WHERE id = $1
		   AND host_id <> $2::text
		 RETURNING `+roomColumns,
		roomID, userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to remove participant: %w", err)
	}
	return room, nil
}

// buildFindRoomsQuery は検索条件からSELECT文とバインド引数を組み立てる。
func buildFindRoomsQuery(filter model.RoomFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if filter.DepartureContains != "" {
		args = append(args, escapeLike(filter.DepartureContains))
		conds = append(conds, fmt.Sprintf("departure ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if filter.DestinationContains != "" {
		args = append(args, escapeLike(filter.DestinationContains))
		conds = append(conds, fmt.Sprintf("destination ILIKE '%%' || $%d || '%%'", len(args)))
	}
	if filter.ParticipantID != "" {
		args = append(args, filter.ParticipantID)
		conds = append(conds, fmt.Sprintf("(host_id = $%d OR $%d = ANY(participants))", len(args), len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT ` + roomColumns + ` FROM rooms`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}
	sb.WriteString(" ORDER BY departure_time ASC, created_at ASC")

	return sb.String(), args
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
// 利用者の入力はリテラルな部分文字列として扱う。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// scanRoom は1行分のカラムをmodel.Roomに読み込む。
func scanRoom(row rowScanner) (*model.Room, error) {
	room := &model.Room{}
	err := row.Scan(
		&room.ID, &room.Title, &room.Departure, &room.Destination, &room.DepartureTime, &room.MaxPassenger,
		&room.HostID, &room.HostName, pq.Array(&room.Participants), &room.CreatedAt, &room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if room.Participants == nil {
		room.Participants = []string{}
	}
	return room, nil
}

// compile-time interface check
var _ RoomRepository = (*PostgresRoomRepo)(nil)
