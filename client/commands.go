package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"raceserver/models"
	"raceserver/rooms"
)

// Commands はサーバーのコマンド面へのHTTPクライアント。
// 各コマンドは同期のリクエスト/レスポンスで、配信はレスポンスより先に行われる。
type Commands struct {
	baseURL string
	http    *http.Client
}

func NewCommands(baseURL string) *Commands {
	return &Commands{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type roomResponse struct {
	Room models.Room `json:"room"`
}

func (c *Commands) post(ctx context.Context, path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("%s: %s (status %d)", path, apiErr.Error, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Commands) CreateRoom(ctx context.Context, playerID, playerName string) (*models.Room, error) {
	var out roomResponse
	err := c.post(ctx, "/room/create", models.CreateRoomRequest{PlayerID: playerID, PlayerName: playerName}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Room, nil
}

func (c *Commands) JoinRoom(ctx context.Context, roomID, playerID, playerName string) (*models.Room, error) {
	var out roomResponse
	err := c.post(ctx, "/room/join", models.JoinRoomRequest{RoomID: roomID, PlayerID: playerID, PlayerName: playerName}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Room, nil
}

func (c *Commands) StartGame(ctx context.Context, roomID, playerID string) error {
	return c.post(ctx, "/room/start", models.StartGameRequest{RoomID: roomID, PlayerID: playerID}, nil)
}

// Report は進捗報告を送る。UI側はこの完了を待たない（fire-and-forget）。
func (c *Commands) Report(ctx context.Context, r *ProgressReport) error {
	return c.post(ctx, "/room/progress", models.ReportProgressRequest{
		RoomID:   r.RoomID,
		PlayerID: r.PlayerID,
		Progress: r.Progress,
		WPM:      r.WPM,
		Accuracy: r.Accuracy,
	}, nil)
}

func (c *Commands) CompleteGame(ctx context.Context, r *ProgressReport) error {
	return c.post(ctx, "/room/complete", models.CompleteGameRequest{
		RoomID:   r.RoomID,
		PlayerID: r.PlayerID,
		WPM:      r.WPM,
		Accuracy: r.Accuracy,
	}, nil)
}

func (c *Commands) LeaveRoom(ctx context.Context, roomID, playerID string) error {
	return c.post(ctx, "/room/leave", models.LeaveRoomRequest{RoomID: roomID, PlayerID: playerID}, nil)
}

func (c *Commands) NewGame(ctx context.Context, roomID, playerID string) (string, error) {
	var out struct {
		NewRoomID string `json:"newRoomId"`
	}
	err := c.post(ctx, "/room/new", models.NewGameRequest{RoomID: roomID, PlayerID: playerID}, &out)
	return out.NewRoomID, err
}

// GetRoom は refetch-on-ambiguity 用の再取得
func (c *Commands) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/room/info?roomId="+roomID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("room info failed with status %d", resp.StatusCode)
	}
	var out roomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out.Room, nil
}

func (c *Commands) Stats(ctx context.Context, playerID string) (*rooms.Stats, error) {
	url := c.baseURL + "/stats"
	if playerID != "" {
		url += "?playerId=" + playerID
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("stats failed with status %d", resp.StatusCode)
	}
	var out rooms.Stats
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
