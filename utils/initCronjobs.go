package utils

import (
	"time"

	"raceserver/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func CronCleaner(db *gorm.DB, logger *zap.Logger) {
	c := cron.New()

	// 24時間動きのないWAITINGルームをCOMPLETEDへ更新するジョブ（毎日実行）
	c.AddFunc("@daily", func() {
		logger.Info("放置ルームを完了状態へ更新する処理を開始")
		staleRoomIDs := []string{}
		db.Model(&models.Room{}).
			Where("status = ? AND updated_at <= ?", models.RoomWaiting, time.Now().Add(-24*time.Hour)).
			Pluck("id", &staleRoomIDs)

		if len(staleRoomIDs) == 0 {
			return
		}

		// メンバーの参照を外してからルームを完了にする
		db.Model(&models.Player{}).
			Where("room_id IN ?", staleRoomIDs).
			Update("room_id", nil)
		db.Model(&models.Room{}).
			Where("id IN ?", staleRoomIDs).
			Update("status", models.RoomCompleted)
		logger.Info("放置ルームの更新完了", zap.Int("rooms", len(staleRoomIDs)))
	})

	// 完了から48時間経過したルームを削除するジョブ（"分 時 日 月 曜日"）
	c.AddFunc("0 3 * * *", func() {
		logger.Info("完了済みルームを削除する処理を開始")
		expiredRoomIDs := []string{}
		db.Model(&models.Room{}).
			Where("status = ? AND updated_at <= ?", models.RoomCompleted, time.Now().Add(-48*time.Hour)).
			Pluck("id", &expiredRoomIDs)

		if len(expiredRoomIDs) == 0 {
			return
		}

		// ルームに紐づく成績を先に削除
		db.Where("room_id IN ?", expiredRoomIDs).Delete(&models.Performance{})

		// 最後にルーム自体を削除
		result := db.Where("id IN ?", expiredRoomIDs).Delete(&models.Room{})
		if result.Error != nil {
			logger.Error("完了済みルームの削除に失敗しました", zap.Error(result.Error))
		} else {
			logger.Info("完了済みルームの削除完了", zap.Int("rooms_deleted", int(result.RowsAffected)))
		}
	})

	c.Start()
}
