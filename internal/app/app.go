package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/wdblog/internal/auth"
	"github.com/hitoshi/wdblog/internal/config"
	"github.com/hitoshi/wdblog/internal/database"
	"github.com/hitoshi/wdblog/internal/generate"
	"github.com/hitoshi/wdblog/internal/handler"
	"github.com/hitoshi/wdblog/internal/logger"
	"github.com/hitoshi/wdblog/internal/metrics"
	"github.com/hitoshi/wdblog/internal/poststore"
	"github.com/hitoshi/wdblog/internal/render"
	"github.com/hitoshi/wdblog/internal/repository"
	"github.com/hitoshi/wdblog/internal/security"
	"github.com/hitoshi/wdblog/internal/store"
	"github.com/hitoshi/wdblog/internal/tracking"
	"github.com/hitoshi/wdblog/internal/worker/cleanup"
)

// ErrDatabaseRequired はDBを必要とするサブコマンドでDATABASE_URLが未設定であることを表す。
var ErrDatabaseRequired = errors.New("DATABASE_URL is required for this command")

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再セットアップ
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "3000"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("public_url", cfg.PublicURL),
	)

	if IsClientCommand(cmd) {
		return runClient(cfg, cmd, args)
	}

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandGenerate:
		return runGenerate(cfg, GenerateDir(args))
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components はサブコマンド間で共有する依存関係。
type components struct {
	registry  *prometheus.Registry
	collector *metrics.Collector
	renderer  *render.Renderer
	factory   *store.Factory
}

// newComponents はHTTPクライアント・外部APIクライアント・レンダラー・メトリクスを組み立てる。
// 外部呼び出しはすべてHTTP_TIMEOUTを上限とする共有クライアントを使う。
func newComponents(cfg *config.Config) (*components, error) {
	log := slog.Default()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	renderer, err := render.New(cfg.Site, security.NewContentSanitizer())
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	factory := &store.Factory{
		Remote: poststore.NewClient(httpClient, log, cfg.BaseURL, collector),
		Identity: auth.NewPasswordProvider(auth.PasswordProviderConfig{
			APIKey:  cfg.FirebaseAPIKey,
			BaseURL: cfg.IdentityBaseURL,
		}, httpClient, log, collector),
		Tracker: tracking.NewBeaconClient(httpClient, log, cfg.TrackURL),
		Logger:  log,
		Metrics: collector,
	}

	return &components{
		registry:  registry,
		collector: collector,
		renderer:  renderer,
		factory:   factory,
	}, nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(databaseURL string) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	slog.Info("database connection established")
	return db, nil
}

// runServe はWebサーバーモードで起動する。
// DATABASE_URLが設定されている場合は解析イベントをDBに保存し、未設定の場合はログ出力のみ行う。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. 共有コンポーネント
	comps, err := newComponents(cfg)
	if err != nil {
		return err
	}

	// 2. 解析イベントの保存先（任意）
	var trackRepo repository.TrackEventRepository
	var healthChecker handler.HealthChecker
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()

		trackRepo = repository.NewPostgresTrackEventRepo(db)
		healthChecker = db
	} else {
		slog.Warn("DATABASE_URL is not set; track events are logged only")
	}
	trackService := tracking.NewService(trackRepo, slog.Default(), comps.collector)

	// 3. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		Renderer:          comps.renderer,
		PublicURL:         cfg.PublicURL,
		Factory:           comps.factory,
		CookieSecure:      cfg.CookieSecure,
		CookieDomain:      cfg.CookieDomain,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrackRecorder:     trackService,
		HealthChecker:     healthChecker,
		MetricsHandler:    metrics.Handler(comps.registry),
	})

	// 4. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second + cfg.HTTPTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-stop:
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down web server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// runGenerate は記事コレクションを1回ロードし、dir配下に静的サイトを書き出す。
func runGenerate(cfg *config.Config, dir string) error {
	comps, err := newComponents(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := generate.New(comps.factory, comps.renderer, cfg.PublicURL, slog.Default())
	result, err := gen.Run(ctx, dir)
	if err != nil {
		return fmt.Errorf("static generation failed: %w", err)
	}

	if len(result.Skipped) > 0 {
		slog.Warn("some posts were not generated", slog.Any("post_ids", result.Skipped))
	}
	return nil
}

// runWorker はワーカーモードで起動する。
// 保持期間を超えた解析イベントをCLEANUP_INTERVALごとに削除する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return ErrDatabaseRequired
	}

	// 1. DB接続
	db, err := openDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())
	if cfg.TrackRetentionDays > 0 {
		cleanupJob.RetentionDays = cfg.TrackRetentionDays
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Int("retention_days", cleanupJob.RetentionDays),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return ErrDatabaseRequired
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
