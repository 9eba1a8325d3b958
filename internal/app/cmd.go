package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はWebサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandGenerate は静的サイトを書き出すことを示す。
	CommandGenerate Command = "generate"
	// CommandWorker はワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandLogin はCLIクライアントとしてサインインすることを示す。
	CommandLogin Command = "login"
	// CommandSignup はCLIクライアントとしてユーザー登録することを示す。
	CommandSignup Command = "signup"
	// CommandLogout はCLIクライアントのセッションを破棄することを示す。
	CommandLogout Command = "logout"
	// CommandWhoami はCLIクライアントのセッションを表示することを示す。
	CommandWhoami Command = "whoami"
	// CommandPublish は記事ファイルから記事を作成することを示す。
	CommandPublish Command = "publish"
	// CommandEdit は記事ファイルで既存記事を更新することを示す。
	CommandEdit Command = "edit"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// defaultGenerateDir はgenerateサブコマンドの既定の出力先。
const defaultGenerateDir = "dist"

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "generate":
		return CommandGenerate
	case "migrate":
		return CommandMigrate
	case "login":
		return CommandLogin
	case "signup":
		return CommandSignup
	case "logout":
		return CommandLogout
	case "whoami":
		return CommandWhoami
	case "publish":
		return CommandPublish
	case "edit":
		return CommandEdit
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// IsClientCommand はCLIクライアントのサブコマンドかを返す。
func IsClientCommand(cmd Command) bool {
	switch cmd {
	case CommandLogin, CommandSignup, CommandLogout, CommandWhoami, CommandPublish, CommandEdit:
		return true
	default:
		return false
	}
}

// GenerateDir はgenerateサブコマンドの出力先を返す。
// `generate <dir>` の形式で指定され、省略時はdist。
func GenerateDir(args []string) string {
	if len(args) >= 2 && args[1] != "" {
		return args[1]
	}
	return defaultGenerateDir
}
