// Package posting 解析開團貼文：標題、品項清單、限量標記。
package posting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Item 解析出的單一品項。Cap 為 nil 表示不限量。
type Item struct {
	Num  int
	Name string
	Info string // 品項完整描述，逐行保留
	Cap  *int
}

// Posting 解析結果。
type Posting struct {
	Title     string
	Items     []Item
	GlobalCap *int // 開團行上的「限量N份」，套用到未個別限量的品項
}

var (
	markerRe    = regexp.MustCompile(`^\s*#?開團(.*)$`)
	itemStartRe = regexp.MustCompile(`^\s*[（(]?(\d+)[）).、]\s*(.*)`)
	globalCapRe = regexp.MustCompile(`限量\s*(\d+)\s*份?`)
	// 品項內限量標記：「限量25組」或「25組限量」
	capAfterRe  = regexp.MustCompile(`限量\s*(\d+)\s*(?:份|組|個|盒|包|箱|杯|顆|瓶|件|入|支|條)?`)
	capBeforeRe = regexp.MustCompile(`(\d+)\s*(?:份|組|個|盒|包|箱|杯|顆|瓶|件|入|支|條)\s*限量`)
)

// Parse 解析正規化後的多行開團貼文。找不到任何品項行時回傳 ok=false，
// 呼叫端應拒絕開團並提示格式。
func Parse(text string) (Posting, bool) {
	lines := strings.Split(text, "\n")

	var p Posting
	start := 0
	if len(lines) > 0 {
		if m := markerRe.FindStringSubmatch(lines[0]); m != nil {
			start = 1
			if g := globalCapRe.FindStringSubmatch(m[1]); g != nil {
				n, _ := strconv.Atoi(g[1])
				if n > 0 {
					p.GlobalCap = &n
				}
			}
		}
	}

	// 找出所有品項起始行
	type itemStart struct {
		line  int
		num   int
		first string
	}
	var starts []itemStart
	for i := start; i < len(lines); i++ {
		if m := itemStartRe.FindStringSubmatch(lines[i]); m != nil {
			num, _ := strconv.Atoi(m[1])
			starts = append(starts, itemStart{line: i, num: num, first: strings.TrimSpace(m[2])})
		}
	}
	if len(starts) == 0 {
		return Posting{}, false
	}

	// 第一個品項之前的非空行 = 標題
	var titleLines []string
	for i := start; i < starts[0].line; i++ {
		if line := strings.TrimSpace(lines[i]); line != "" {
			titleLines = append(titleLines, line)
		}
	}
	p.Title = strings.Join(titleLines, " ")
	if p.Title == "" {
		p.Title = "團購"
	}

	// 逐品項收集描述（到下一個品項行為止），重複編號以最後一筆為準、
	// 位置保留第一次出現的順序。
	indexByNum := map[int]int{}
	for idx, st := range starts {
		end := len(lines)
		if idx+1 < len(starts) {
			end = starts[idx+1].line
		}

		var itemLines []string
		if st.first != "" {
			itemLines = append(itemLines, st.first)
		}
		for j := st.line + 1; j < end; j++ {
			if line := strings.TrimSpace(lines[j]); line != "" {
				itemLines = append(itemLines, line)
			}
		}

		name := fmt.Sprintf("品項%d", st.num)
		info := name
		if len(itemLines) > 0 {
			name = itemLines[0]
			info = strings.Join(itemLines, "\n")
		}

		item := Item{Num: st.num, Name: name, Info: info, Cap: itemCap(info, p.GlobalCap)}
		if at, dup := indexByNum[st.num]; dup {
			p.Items[at] = item
		} else {
			indexByNum[st.num] = len(p.Items)
			p.Items = append(p.Items, item)
		}
	}

	return p, true
}

// itemCap 取品項描述內的限量標記；沒有時退回全域限量。
func itemCap(info string, global *int) *int {
	for _, re := range []*regexp.Regexp{capAfterRe, capBeforeRe} {
		if m := re.FindStringSubmatch(info); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return &n
			}
		}
	}
	return global
}
