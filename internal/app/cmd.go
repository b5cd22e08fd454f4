package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe は auth と room の両方のAPIを1つのポートで提供することを示す。
	CommandServe Command = "serve"
	// CommandAuth は auth サービス（/auth/*）のみを起動することを示す。
	CommandAuth Command = "auth"
	// CommandRoom は room サービス（/rooms*）のみを起動することを示す。
	CommandRoom Command = "room"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch Command(args[0]) {
	case CommandServe, CommandAuth, CommandRoom, CommandWorker, CommandMigrate, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}

// servesAuth はコマンドが /auth/* を提供するかを返す。
func (c Command) servesAuth() bool {
	return c == CommandServe || c == CommandAuth
}

// servesRooms はコマンドが /rooms* を提供するかを返す。
func (c Command) servesRooms() bool {
	return c == CommandServe || c == CommandRoom
}
