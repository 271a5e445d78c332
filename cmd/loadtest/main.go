package main

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 記錄單次請求的 HTTP 結果，便於聚合統計。
type Result struct {
	Status int
	Body   string
	Err    error
}

// webhookEvent LINE webhook 文字訊息事件的最小形狀。
type webhookEvent struct {
	Type           string `json:"type"`
	WebhookEventID string `json:"webhookEventId"`
	ReplyToken     string `json:"replyToken"`
	Source         struct {
		Type    string `json:"type"`
		GroupID string `json:"groupId"`
		UserID  string `json:"userId"`
	} `json:"source"`
	Message struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"message"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	secret := flag.String("secret", "", "LINE channel secret，用來簽 webhook body")
	groupID := flag.String("group", "Cload_test_group", "simulated group id")

	// 併發下單測試參數：多個使用者同時對同一品項下單
	nUsers := flag.Int("users", 100, "distinct users")
	concurrency := flag.Int("c", 20, "max concurrency")
	itemNum := flag.Int("item", 1, "item number to order")
	open := flag.Bool("open", true, "post an opening message before the test")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	if *open {
		// 先開團再併發下單，避免全部打在「沒有團購」的靜默路徑上
		res := sendText(client, *baseURL, *secret, *groupID, "opener", "#開團 限量50份\n壓測團\n1) 水餃 50元\n2) 蛋餃 60元")
		if res.Err != nil {
			panic(fmt.Sprintf("open failed: %v", res.Err))
		}
		fmt.Println("open ok, status", res.Status)
	}

	fmt.Printf("start order test: group=%s users=%d concurrency=%d item=%d\n",
		*groupID, *nUsers, *concurrency, *itemNum)
	results := runOrders(client, *baseURL, *secret, *groupID, *itemNum, *nUsers, *concurrency)
	printSummary("orders", results)

	// 限流測試：同一個來源連續打，比較容易觸發 429
	fmt.Println("\nstart rate limit test: 50 requests, concurrency 50")
	results2 := runOrders(client, *baseURL, *secret, *groupID, *itemNum, 50, 50)
	printSummary("rate_limit", results2)
}

func runOrders(client *http.Client, baseURL, secret, groupID string, itemNum, nUsers, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, nUsers)

	for i := 0; i < nUsers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			userID := fmt.Sprintf("Uloadtest%04d", i)
			results[i] = sendText(client, baseURL, secret, groupID, userID,
				fmt.Sprintf("#%d+1", itemNum))
		}(i)
	}
	wg.Wait()
	return results
}

// sendText 以 LINE webhook 格式送出一則群組文字訊息。
func sendText(client *http.Client, baseURL, secret, groupID, userID, text string) Result {
	var ev webhookEvent
	ev.Type = "message"
	ev.WebhookEventID = fmt.Sprintf("ev-%s-%d", userID, time.Now().UnixNano())
	ev.ReplyToken = "" // 壓測不需要真的回覆
	ev.Source.Type = "group"
	ev.Source.GroupID = groupID
	ev.Source.UserID = userID
	ev.Message.Type = "text"
	ev.Message.ID = ev.WebhookEventID
	ev.Message.Text = text

	body, err := json.Marshal(map[string]any{
		"destination": "loadtest",
		"events":      []webhookEvent{ev},
	})
	if err != nil {
		return Result{Err: err}
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/webhook", bytes.NewReader(body))
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", sign(secret, body))

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return Result{Status: resp.StatusCode, Body: string(b)}
}

// sign LINE webhook 簽章：HMAC-SHA256(secret, body) 再 base64。
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func printSummary(name string, results []Result) {
	byStatus := map[int]int{}
	errs := 0
	for _, r := range results {
		if r.Err != nil {
			errs++
			continue
		}
		byStatus[r.Status]++
	}
	fmt.Printf("[%s] total=%d errors=%d\n", name, len(results), errs)
	for status, n := range byStatus {
		fmt.Printf("  status %d: %d\n", status, n)
	}
}
