package quotes

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultPassage はAPI障害時のフォールバック本文。ルーム作成を止めないために必ず存在する。
const DefaultPassage = "The quick brown fox jumps over the lazy dog. This is a simple typing test quote."

// DefaultAPIURL は既定の引用API。設定ファイルで上書き可能。
const DefaultAPIURL = "https://quotes-api-self.vercel.app/quote"

// Quote はレース本文として使う1つの引用文
type Quote struct {
	Content string
	Author  string
}

// Fetcher はレース本文の取得元。失敗してもエラーを返さずフォールバックする契約。
type Fetcher interface {
	Fetch(ctx context.Context) Quote
}

// APIFetcher は外部の引用APIから本文を取得するFetcher実装
type APIFetcher struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

func NewAPIFetcher(url string, logger *zap.Logger) *APIFetcher {
	if url == "" {
		url = DefaultAPIURL
	}
	return &APIFetcher{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger,
	}
}

// Fetch は引用を1件取得する。API障害・不正レスポンス時はログを残してフォールバックを返す。
func (f *APIFetcher) Fetch(ctx context.Context) Quote {
	fallback := Quote{Content: DefaultPassage, Author: "Default"}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		f.logger.Error("引用APIリクエストの作成に失敗", zap.Error(err))
		return fallback
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Warn("引用APIへの接続に失敗、デフォルト本文を使用", zap.Error(err))
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("引用APIが異常ステータスを返却、デフォルト本文を使用",
			zap.Int("status", resp.StatusCode))
		return fallback
	}

	var body struct {
		Quote  string `json:"quote"`
		Author string `json:"author"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Quote == "" {
		f.logger.Warn("引用APIレスポンスの解析に失敗、デフォルト本文を使用", zap.Error(err))
		return fallback
	}

	return Quote{Content: cleanQuote(body.Quote), Author: body.Author}
}

// 引用文に混ざるUnicodeの引用符・ダッシュ類をASCIIに正規化する。
// タイピング対象として通常のキーボードで入力可能にするため。
var quoteReplacer = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"–", "-", // en dash
	"—", "-", // em dash
	"…", "...", // ellipsis
	"′", "'", // prime
	"″", `"`, // double prime
	"‴", "'''", // triple prime
	"‵", "'", // reversed prime
	"‶", `"`, // reversed double prime
	"‷", "'''", // reversed triple prime
	"´", "'", // acute accent
	"`", "'", // grave accent
)

func cleanQuote(text string) string {
	return quoteReplacer.Replace(text)
}

// StaticFetcher は常に同じ本文を返すFetcher。テストや開発用。
type StaticFetcher struct {
	Quote Quote
}

func (f StaticFetcher) Fetch(ctx context.Context) Quote {
	return f.Quote
}
