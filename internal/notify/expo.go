package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taoyao-code/wallbox-server/internal/storage/models"
)

// DefaultExpoURL Expo 推送接口
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// Ticket 单次推送结果
type Ticket struct {
	Status string // sent | failed | error
	ID     string
	Error  string
	// DeviceNotRegistered 时令牌应停用
	Unregistered bool
}

// Sender 推送通道
type Sender interface {
	Send(ctx context.Context, token, message string) Ticket
}

// ExpoSender Expo 推送
type ExpoSender struct {
	client *http.Client
	url    string
}

func NewExpoSender(url string, timeout time.Duration) *ExpoSender {
	if url == "" {
		url = DefaultExpoURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ExpoSender{client: &http.Client{Timeout: timeout}, url: url}
}

type expoMessage struct {
	To    string `json:"to"`
	Sound string `json:"sound"`
	Body  string `json:"body"`
}

type expoResponse struct {
	Data *struct {
		ID      string `json:"id"`
		Status  string `json:"status"`
		Message string `json:"message"`
		Details *struct {
			Error string `json:"error"`
		} `json:"details"`
	} `json:"data"`
}

// Send HTTP 200 且带 data 时按 data.status 判定；其余情况记为 error
func (s *ExpoSender) Send(ctx context.Context, token, message string) Ticket {
	body, _ := json.Marshal(expoMessage{To: token, Sound: "default", Body: message})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Ticket{Status: models.PushError, Error: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Ticket{Status: models.PushError, Error: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	var out expoResponse
	if resp.StatusCode != http.StatusOK || json.Unmarshal(raw, &out) != nil || out.Data == nil {
		return Ticket{Status: models.PushError, Error: strings.TrimSpace(string(raw))}
	}
	t := Ticket{ID: out.Data.ID, Error: out.Data.Message}
	if out.Data.Status == "ok" {
		t.Status = models.PushSent
	} else {
		t.Status = models.PushFailed
		t.Unregistered = out.Data.Details != nil && out.Data.Details.Error == "DeviceNotRegistered"
	}
	return t
}
