// Package ai 以 OpenAI chat completions 把自由口語訊息（「我要一份水餃」）
// 轉成標準指令。只在規則路由全部未命中時使用；任何失敗都回傳錯誤，
// 由呼叫端決定保持靜默，絕不因 AI 掛掉影響指令流程。
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tuangou/internal/command"
)

// CatalogItem 提供給模型的品項目錄一列。
type CatalogItem struct {
	BuyNum  int
	ItemNum int
	Name    string
	Title   string
}

// OwnOrder 發話者目前的一筆訂單，讓模型看得懂「再加一份」是加在哪。
type OwnOrder struct {
	BuyNum   int
	ItemNum  int
	Name     string
	Quantity int
}

// Request 一次意圖解析請求。
type Request struct {
	Text    string
	Catalog []CatalogItem
	Orders  []OwnOrder
}

// IntentParser 把訊息文字解析成指令。
type IntentParser interface {
	ParseIntent(ctx context.Context, req Request) (command.Intent, error)
}

// Config OpenAI 端點設定。
type Config struct {
	APIKey string
	Model  string
	URL    string // 空字串用官方端點
	// Timeout 單次呼叫上限，群組訊息回覆不能等太久。
	Timeout time.Duration
}

const defaultURL = "https://api.openai.com/v1/chat/completions"

// Client 透過 HTTP 呼叫 OpenAI 的 IntentParser 實作。
type Client struct {
	cfg  Config
	http *http.Client
}

// New 建立 OpenAI 客戶端。
func New(cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

const systemPrompt = `你是 LINE 群組團購機器人的訊息解析器。把使用者訊息解析成 JSON：
{"action":"order|list|my_orders|help|none","item_num":品項編號,"quantity":數量,"for_name":"代訂對象或空字串"}
action 規則：
- 想下單且訊息裡能對到目錄中的品項 → order，item_num 填該品項編號，數量沒講填 1
- 想看目前訂單狀況 → list；想看自己的訂單 → my_orders；問怎麼用 → help
- 其他（閒聊、問候、無關訊息）→ none
只輸出 JSON，不要其他文字。`

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *respFormat   `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type respFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type parsedIntent struct {
	Action   string `json:"action"`
	ItemNum  int    `json:"item_num"`
	Quantity int    `json:"quantity"`
	ForName  string `json:"for_name"`
}

// ParseIntent 呼叫模型並把結果映射回指令。
func (c *Client) ParseIntent(ctx context.Context, req Request) (command.Intent, error) {
	var sb strings.Builder
	sb.WriteString("目前進行中的品項目錄：\n")
	for _, it := range req.Catalog {
		fmt.Fprintf(&sb, "[團購%d] %s 品項%d：%s\n", it.BuyNum, it.Title, it.ItemNum, it.Name)
	}
	if len(req.Orders) > 0 {
		sb.WriteString("\n發話者目前的訂單：\n")
		for _, o := range req.Orders {
			fmt.Fprintf(&sb, "[團購%d] 品項%d：%s ×%d\n", o.BuyNum, o.ItemNum, o.Name, o.Quantity)
		}
	}
	sb.WriteString("\n使用者訊息：")
	sb.WriteString(req.Text)

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: sb.String()},
		},
		Temperature:    0,
		ResponseFormat: &respFormat{Type: "json_object"},
	})
	if err != nil {
		return command.Intent{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return command.Intent{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return command.Intent{}, fmt.Errorf("call openai: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return command.Intent{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return command.Intent{}, fmt.Errorf("openai status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return command.Intent{}, fmt.Errorf("decode response: %w", err)
	}
	if cr.Error != nil {
		return command.Intent{}, fmt.Errorf("openai error: %s", cr.Error.Message)
	}
	if len(cr.Choices) == 0 {
		return command.Intent{}, fmt.Errorf("openai: empty choices")
	}

	var pi parsedIntent
	if err := json.Unmarshal([]byte(strings.TrimSpace(cr.Choices[0].Message.Content)), &pi); err != nil {
		return command.Intent{}, fmt.Errorf("decode intent json: %w", err)
	}
	return mapIntent(pi)
}

// mapIntent 把模型輸出映射成指令，不合法的輸出一律視為解析失敗。
func mapIntent(pi parsedIntent) (command.Intent, error) {
	switch pi.Action {
	case "order":
		if pi.ItemNum < 1 {
			return command.Intent{}, fmt.Errorf("order 缺 item_num")
		}
		qty := pi.Quantity
		explicit := qty > 0
		if qty < 1 {
			qty = 1
		}
		return command.Intent{
			Kind:     command.KindOrder,
			ItemNum:  pi.ItemNum,
			Quantity: qty,
			Explicit: explicit,
			ForName:  strings.TrimSpace(pi.ForName),
		}, nil
	case "list":
		return command.Intent{Kind: command.KindList}, nil
	case "my_orders":
		return command.Intent{Kind: command.KindMyOrders}, nil
	case "help":
		return command.Intent{Kind: command.KindHelp}, nil
	case "none":
		return command.Intent{Kind: command.KindUnknown}, nil
	default:
		return command.Intent{}, fmt.Errorf("未知的 action: %q", pi.Action)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
