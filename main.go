package main

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"raceserver/broker"   // ルームチャンネルへのイベント配信（Redis Pub/Sub）
	"raceserver/database" // PostgreSQLとRedisの初期化
	"raceserver/handlers" // コマンド面のHTTPハンドラとWebSocketリレー
	"raceserver/middlewares"
	"raceserver/quotes" // レース本文の取得元
	"raceserver/rooms"  // ルームのライフサイクルを司るステートマシン
	"raceserver/store"  // ルーム・プレイヤー・成績の永続化
	"raceserver/utils"  // ロガーの初期化とCronジョブ(PostgreSQLの定期クリーンナップ)

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

func main() {
	var logger *zap.Logger
	var err error
	logger, err = utils.InitLogger() // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	// Websocket接続で用いるアップグレーダを初期化
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	// 設定ファイルの読み込み
	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}

	// 非同期でPostgreSQLとRedisの初期化
	var db *gorm.DB
	var rdb *redis.Client
	done := make(chan bool)

	go func() {
		db, err = database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
		}
		done <- true
	}()

	go func() {
		rdb, err = database.InitRedis(logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		done <- true
	}()

	// 2つの初期化が完了するのを待つ
	<-done
	<-done

	// クーロンスケジューラのセットアップと呼び出し
	go utils.CronCleaner(db, logger)

	// ステートマシンと依存の組み立て。配信窓口は注入して差し替え可能にする
	br := broker.NewRedisBroadcaster(rdb, logger)
	st := store.New(db, logger)
	qf := quotes.NewAPIFetcher(config.QuoteAPIURL, logger)
	svc := rooms.NewService(st, br, qf, logger)

	router := gin.New()
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://192.168.1.1:8080"}, //ここにデプロイサーバーのIPアドレスを設定
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "SessionID", "X-Player-Id"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// 進捗報告は高頻度なのでIP単位で限流する（1秒30件、バースト60）
	progressLimiter := middlewares.RateLimiter(rate.Limit(30), 60, logger)

	//各HTTPリクエストのルーティング
	router.POST("/room/create", func(c *gin.Context) {
		handlers.RoomCreate(c, svc, logger)
	})
	router.POST("/room/join", func(c *gin.Context) {
		handlers.RoomJoin(c, svc, logger)
	})
	router.POST("/room/start", func(c *gin.Context) {
		handlers.RoomStart(c, svc, logger)
	})
	router.POST("/room/progress", progressLimiter, func(c *gin.Context) {
		handlers.RoomProgress(c, svc, logger)
	})
	router.POST("/room/complete", func(c *gin.Context) {
		handlers.RoomComplete(c, svc, logger)
	})
	router.POST("/room/leave", func(c *gin.Context) {
		handlers.RoomLeave(c, svc, logger)
	})
	router.POST("/room/new", func(c *gin.Context) {
		handlers.RoomNew(c, svc, logger)
	})
	router.GET("/room/info", func(c *gin.Context) {
		handlers.RoomInfo(c, svc, logger)
	})
	router.GET("/stats", func(c *gin.Context) {
		handlers.StatsHandler(c, svc, logger)
	})
	router.GET("/ws", func(c *gin.Context) {
		handlers.HandleEventStream(c.Request.Context(), c.Writer, c.Request, br, rdb, logger, upgrader)
	})

	// テスト時はHTTPサーバーとして運用。デフォルトポートは ":8080"
	router.Run()

	// // 本番環境ではコメントアウトを解除し、HTTPSサーバーとして運用
	// err = router.RunTLS(":443", "path/to/cert.pem", "path/to/key.pem")
	// if err != nil {
	// 	logger.Fatal("Failed to run HTTPS server: ", zap.Error(err))
	// }
}
