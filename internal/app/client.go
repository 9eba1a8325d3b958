package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hitoshi/wdblog/internal/cli"
	"github.com/hitoshi/wdblog/internal/config"
	"github.com/hitoshi/wdblog/internal/kvstore"
	"github.com/hitoshi/wdblog/internal/model"
	"github.com/hitoshi/wdblog/internal/store"
)

// CLIクライアントの認証情報を渡す環境変数。
const (
	envEmail    = "WDBLOG_EMAIL"
	envPassword = "WDBLOG_PASSWORD"
)

// ErrUsage はサブコマンドの引数が不足していることを表す。
var ErrUsage = errors.New("invalid arguments")

// credentialsFromEnv は環境変数から認証情報を読み込む。どちらかが空ならfalse。
func credentialsFromEnv() (model.Credentials, bool) {
	creds := model.Credentials{Email: os.Getenv(envEmail), Password: os.Getenv(envPassword)}
	return creds, creds.Email != "" && creds.Password != ""
}

// runClient はCLIクライアントのサブコマンドを実行する。
// login・signupはトークンをSESSION_PATHのファイルに保存する。
// publish・editは保存済みセッションを使うが、WDBLOG_EMAIL・WDBLOG_PASSWORDが設定されている場合は
// メモリ上のセッションで認証してから実行し、ファイルには何も書き込まない。
func runClient(cfg *config.Config, cmd Command, args []string) error {
	comps, err := newComponents(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	creds, hasCreds := credentialsFromEnv()

	var local store.KeyValueStore
	if hasCreds && (cmd == CommandPublish || cmd == CommandEdit) {
		local = kvstore.NewMemory()
	} else {
		f, err := kvstore.NewFile(cfg.SessionPath)
		if err != nil {
			return err
		}
		local = f
	}
	session := cli.NewSession(comps.factory, local, slog.Default())

	switch cmd {
	case CommandLogin, CommandSignup:
		if !hasCreds {
			return fmt.Errorf("%w: %s and %s must be set", ErrUsage, envEmail, envPassword)
		}
		claims, err := session.Login(ctx, creds, cmd == CommandLogin)
		if err != nil {
			return err
		}
		slog.Info("signed in",
			slog.String("email", claims.Email),
			slog.String("session_path", cfg.SessionPath),
		)
		return nil

	case CommandLogout:
		if err := session.Logout(); err != nil {
			return err
		}
		slog.Info("signed out", slog.String("session_path", cfg.SessionPath))
		return nil

	case CommandWhoami:
		claims, ok, err := session.Whoami()
		if err != nil {
			return err
		}
		if !ok {
			return model.NewUnauthenticatedError()
		}
		slog.Info("current session",
			slog.String("email", claims.Email),
			slog.String("user_id", claims.UserID),
		)
		return nil

	case CommandPublish:
		if len(args) < 2 {
			return fmt.Errorf("%w: publish <post-file>", ErrUsage)
		}
		input, err := cli.LoadPostFile(args[1])
		if err != nil {
			return err
		}
		if err := loginIfRequested(ctx, session, creds, hasCreds); err != nil {
			return err
		}
		post, err := session.Publish(ctx, input)
		if err != nil {
			return err
		}
		slog.Info("post published", slog.String("post_id", post.ID), slog.String("title", post.Title()))
		return nil

	case CommandEdit:
		if len(args) < 3 {
			return fmt.Errorf("%w: edit <post-id> <post-file>", ErrUsage)
		}
		input, err := cli.LoadPostFile(args[2])
		if err != nil {
			return err
		}
		if err := loginIfRequested(ctx, session, creds, hasCreds); err != nil {
			return err
		}
		post, err := session.Edit(ctx, args[1], input)
		if err != nil {
			return err
		}
		slog.Info("post updated", slog.String("post_id", post.ID), slog.String("title", post.Title()))
		return nil
	}

	return fmt.Errorf("%w: unknown client command %q", ErrUsage, cmd)
}

func loginIfRequested(ctx context.Context, session *cli.Session, creds model.Credentials, hasCreds bool) error {
	if !hasCreds {
		return nil
	}
	_, err := session.Login(ctx, creds, true)
	return err
}
