package models

// Config 構造体はデータベース接続と外部APIの設定情報を保持します。
type Config struct {
	DBHost      string `json:"db_host"`
	DBUser      string `json:"db_user"`
	DBPassword  string `json:"db_password"`
	DBName      string `json:"db_name"`
	DBSSLMode   string `json:"db_sslmode"`
	QuoteAPIURL string `json:"quote_api_url"` // 空の場合は既定の引用APIを使用
}
