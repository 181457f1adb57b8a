package identity

import (
	"encoding/json"
	"fmt"
	"os"
)

// Credentials はIdPのサービスアカウント資格情報ファイルのうち、検証に必要な項目。
type Credentials struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// LoadCredentials は資格情報ファイルを読み込む。起動時に一度だけ呼び出す。
// ファイルが存在しない・読めない・project_idが空の場合はエラーを返す。
func LoadCredentials(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	if creds.ProjectID == "" {
		return nil, fmt.Errorf("credentials file %s has no project_id", path)
	}

	return &creds, nil
}
