package rooms

import (
	"context"
	"errors"

	"raceserver/store"
)

// Stats は集計情報。BestWPMとRecentAverageはプレイヤー指定時のみ設定される
type Stats struct {
	OnlinePlayers int64    `json:"onlinePlayers"`
	ActiveRaces   int64    `json:"activeRaces"`
	BestWPM       *int     `json:"bestWpm"`
	RecentAverage *float64 `json:"recentAverage"`
}

// 直近何レース分でRecentAverageを算出するか
const recentStatsWindow = 5

// Stats はオンライン人数・進行中レース数と、指定プレイヤーの成績サマリを返す。
func (s *Service) Stats(ctx context.Context, playerID string) (*Stats, error) {
	online, err := s.store.CountOnlinePlayers(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.store.CountActiveRooms(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{OnlinePlayers: online, ActiveRaces: active}
	if playerID == "" {
		return stats, nil
	}

	best, err := s.store.BestPerformance(ctx, playerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	if best != nil {
		stats.BestWPM = &best.WPM
	}

	recent, err := s.store.RecentPerformances(ctx, playerID, recentStatsWindow)
	if err != nil {
		return nil, err
	}
	if len(recent) > 0 {
		sum := 0
		for _, p := range recent {
			sum += p.WPM
		}
		avg := float64(sum) / float64(len(recent))
		stats.RecentAverage = &avg
	}
	return stats, nil
}
