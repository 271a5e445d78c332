package command

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	openRe      = regexp.MustCompile(`^\s*#?開團`)
	hashPlusRe  = regexp.MustCompile(`^#(\d+)\+(\d+)$`)
	itemRefRe   = regexp.MustCompile(`^[#+](\d+)$`)
	singleRe    = regexp.MustCompile(`^[#+](\d+)\s+(.+)$`)
	dotRestRe   = regexp.MustCompile(`^(\d+)\.\s*(\S.*)$`)
	dotBareRe   = regexp.MustCompile(`^(\d+)\.\s*$`)
	cancelRe    = regexp.MustCompile(`^退出\s+(\d+)(?:\s+(\S+))?\s*$`)
	listRe      = regexp.MustCompile(`^(?:列表|/列表|查看|清單)\s*(\d+)?$`)
	mineRe      = regexp.MustCompile(`^(?:我的訂單|我的單)$`)
	helpRe      = regexp.MustCompile(`^(?:團購說明|操作說明|說明|help)$`)
	closeRe     = regexp.MustCompile(`^結團\s*(\d+)?$`)
	cancelBuyRe = regexp.MustCompile(`^取消團購\s*(\d+)?$`)
	// 數量 token，可帶量詞：2、2份、3組
	qtyTokenRe = regexp.MustCompile(`^(\d+)\s*(?:份|個|組|盒|包|箱|杯|顆|瓶|件|入|支|條)?$`)
)

// AI fallback 的長度界線（rune 數）。太短多半是表符，太長多半是閒聊貼文。
const (
	aiMinRunes = 2
	aiMaxRunes = 100
)

// Classify 依固定優先序把一則訊息分類成 Intent。絕不失敗：
// 沒有規則命中時回傳 KindUnknown（附 AI 適用性判定）。
func Classify(raw string) Intent {
	text := strings.TrimSpace(raw)

	// 1. 開團：多行且以開團標記起頭，品項能否解析由開團流程判斷
	if openRe.MatchString(text) && strings.Contains(text, "\n") {
		return Intent{Kind: KindOpen}
	}

	// 2. 緊湊格式 #N+M：品項 N、明講 M 份
	if m := hashPlusRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindOrder, ItemNum: atoi(m[1]), Quantity: atoi(m[2]), Explicit: true}
	}

	// 3. 多品項（#1 #2 #3 [名字]）：每項隱含 1 份
	if in, ok := classifyMultiOrder(text); ok {
		return in
	}

	// 4. 單品項 + 後綴（數量 / 名字 / 名字 數量）
	if m := singleRe.FindStringSubmatch(text); m != nil {
		return orderWithRest(atoi(m[1]), m[2])
	}

	// 5. 單獨品項編號 → 回問數量，不能默默下單
	if m := itemRefRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindQuantityPrompt, ItemNum: atoi(m[1])}
	}

	// 6. 數字點格式（1. 2），等同規則 4
	if m := dotRestRe.FindStringSubmatch(text); m != nil {
		return orderWithRest(atoi(m[1]), m[2])
	}

	// 7. 單獨數字點 → 回問數量
	if m := dotBareRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindQuantityPrompt, ItemNum: atoi(m[1])}
	}

	// 8. 退出
	if m := cancelRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindCancelOrder, ItemNum: atoi(m[1]), ForName: m[2]}
	}

	// 9. 固定句查詢
	if m := listRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindList, BuyNum: atoi(m[1])}
	}
	if mineRe.MatchString(text) {
		return Intent{Kind: KindMyOrders}
	}
	if helpRe.MatchString(strings.ToLower(text)) {
		return Intent{Kind: KindHelp}
	}

	// 10. 團主指令，編號可不加空格（結團2）
	if m := closeRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindClose, BuyNum: atoi(m[1])}
	}
	if m := cancelBuyRe.FindStringSubmatch(text); m != nil {
		return Intent{Kind: KindCancelBuy, BuyNum: atoi(m[1])}
	}

	// 11. 品名批次下單（水餃×2、蛋餃×3 / 小明|水餃×2）
	if in, ok := classifyBatch(text); ok {
		return in
	}

	// 12. 交給 AI（呼叫端決定），或保持靜默
	return Intent{Kind: KindUnknown, AIEligible: aiEligible(text)}
}

// classifyMultiOrder 嘗試把訊息解成兩個以上的品項代號加選擇性結尾名字。
func classifyMultiOrder(text string) (Intent, bool) {
	fields := strings.Fields(text)
	var nums []int
	var rest []string
	for _, f := range fields {
		if m := itemRefRe.FindStringSubmatch(f); m != nil {
			nums = append(nums, atoi(m[1]))
		} else {
			rest = append(rest, f)
		}
	}
	if len(nums) < 2 {
		return Intent{}, false
	}
	return Intent{Kind: KindMultiOrder, ItemNums: nums, ForName: strings.Join(rest, " ")}, true
}

// orderWithRest 解析「#N <rest>」的後綴：純數量 → 明講數量；
// 「名字 數量」→ 代訂明講數量；其餘 → 代訂 1 份（隱含、累加制）。
func orderWithRest(itemNum int, rest string) Intent {
	rest = strings.TrimSpace(rest)
	if m := qtyTokenRe.FindStringSubmatch(rest); m != nil {
		return Intent{Kind: KindOrder, ItemNum: itemNum, Quantity: atoi(m[1]), Explicit: true}
	}
	fields := strings.Fields(rest)
	if len(fields) >= 2 {
		if m := qtyTokenRe.FindStringSubmatch(fields[len(fields)-1]); m != nil {
			return Intent{
				Kind:     KindOrder,
				ItemNum:  itemNum,
				Quantity: atoi(m[1]),
				Explicit: true,
				ForName:  strings.Join(fields[:len(fields)-1], " "),
			}
		}
	}
	return Intent{Kind: KindOrder, ItemNum: itemNum, Quantity: 1, ForName: rest}
}

// batch 分隔符：頓號、逗號、中點、斜線與換行
var batchSepRe = regexp.MustCompile(`[、，,・;；/\n]+`)

// classifyBatch 解析品名批次下單。全部片段都要是「品名×數量」形才算命中，
// 避免把一般聊天吃掉。
func classifyBatch(text string) (Intent, bool) {
	forName := ""
	body := text

	// 「小明|水餃×2」直式代訂
	if i := strings.Index(text, "|"); i > 0 {
		name := strings.TrimSpace(text[:i])
		if name != "" && !strings.ContainsAny(name, "、，,・\n") {
			forName = name
			body = text[i+1:]
		}
	} else if lines := strings.SplitN(text, "\n", 2); len(lines) == 2 {
		// 「小明\n水餃+1」：首行是純名字、其餘行都是品項片段
		first := strings.TrimSpace(lines[0])
		if _, _, _, ok := splitBatchEntry(first); !ok && first != "" {
			forName = first
			body = lines[1]
		}
	}

	var entries []BatchEntry
	anyMarked := false
	for _, part := range batchSepRe.Split(body, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, qty, marked, ok := splitBatchEntry(part)
		if !ok {
			return Intent{}, false
		}
		if marked {
			anyMarked = true
		}
		entries = append(entries, BatchEntry{Name: name, Quantity: qty})
	}
	if len(entries) == 0 {
		return Intent{}, false
	}
	// 單一個裸數字片段跟句尾帶數字的閒聊（晚安88）分不開，
	// 沒有標記也沒有代訂對象就不當批次
	if len(entries) == 1 && !anyMarked && forName == "" {
		return Intent{}, false
	}
	return Intent{Kind: KindBatchOrder, Entries: entries, ForName: forName}, true
}

// splitBatchEntry 把「水餃×2」「水餃+1」「水餃*2」「水餃2」拆成 (品名, 數量)。
// marked 表示片段帶有明確的乘號類標記。
func splitBatchEntry(part string) (name string, qty int, marked, ok bool) {
	runes := []rune(part)

	// 先找乘號類標記
	for i := len(runes) - 1; i > 0; i-- {
		r := runes[i]
		if r == '×' || r == 'x' || r == 'X' || r == '*' || r == '+' {
			n := strings.TrimSpace(string(runes[:i]))
			qtyStr := strings.TrimSpace(string(runes[i+1:]))
			if m := qtyTokenRe.FindStringSubmatch(qtyStr); m != nil && validBatchName(n) {
				return n, atoi(m[1]), true, true
			}
			return "", 0, false, false
		}
	}

	// 品名直接接數字：水餃2
	j := len(runes)
	for j > 0 && runes[j-1] >= '0' && runes[j-1] <= '9' {
		j--
	}
	if j < len(runes) {
		n := strings.TrimSpace(string(runes[:j]))
		if validBatchName(n) {
			return n, atoi(string(runes[j:])), false, true
		}
	}
	return "", 0, false, false
}

// validBatchName 品名片段至少要有一個文字字元，且不是品項代號形。
func validBatchName(name string) bool {
	if name == "" || strings.HasPrefix(name, "#") || strings.HasPrefix(name, "+") {
		return false
	}
	for _, r := range name {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

// aiEligible 判定未命中文字是否值得送 AI：長度界內且含至少一個文字字元
// （排除純表符、純符號與空白）。
func aiEligible(text string) bool {
	n := 0
	hasLetter := false
	for _, r := range text {
		if !unicode.IsSpace(r) {
			n++
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			hasLetter = true
		}
	}
	return hasLetter && n >= aiMinRunes && n <= aiMaxRunes
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
