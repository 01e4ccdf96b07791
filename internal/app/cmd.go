package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はローカルUIサーバーを起動することを示す。
	CommandServe Command = "serve"
	// CommandMigrate はSQLite資格情報ストアのスキーマを作成することを示す。
	CommandMigrate Command = "migrate"
	// CommandStatus は保存済みのログイン状態を表示することを示す。
	CommandStatus Command = "status"
	// CommandLogout は保存済みの資格情報を削除することを示す。
	// 起動中のサーバーはファイル監視により未ログイン状態へ移る。
	CommandLogout Command = "logout"
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
	case CommandServe, CommandMigrate, CommandStatus, CommandLogout, CommandHealthcheck:
		return Command(args[0])
	default:
		return CommandServe
	}
}
