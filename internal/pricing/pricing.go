// Package pricing 從品項描述文字解析單價與階梯價，並計算指定數量的金額。
package pricing

import (
	"math"
	"regexp"
	"sort"
)

// Tier 一個價格階梯：買滿 Quantity 個共 Price 元。
// Quantity == 1 代表單價。
type Tier struct {
	Quantity int
	Price    int
}

var (
	// 階梯價標記：數量 + 量詞 + 總價，如「2包420元」「3盒1000元」。
	tierRe = regexp.MustCompile(`(\d+)\s*(包|組|份|盒|入|件|箱|杯|顆|瓶|支|條|個)\s*(\d+)\s*元`)
	// 裸價格：「50元」。
	priceRe = regexp.MustCompile(`(\d+)\s*元`)
)

// ExtractUnitPrice 取描述中第一個未被階梯價占用的「N元」。找不到回傳 (0, false)。
func ExtractUnitPrice(desc string) (int, bool) {
	if desc == "" {
		return 0, false
	}
	claimed := tierRe.FindAllStringIndex(desc, -1)
	for _, loc := range priceRe.FindAllStringSubmatchIndex(desc, -1) {
		inTier := false
		for _, t := range claimed {
			if loc[0] >= t[0] && loc[1] <= t[1] {
				inTier = true
				break
			}
		}
		if inTier {
			continue
		}
		return atoi(desc[loc[2]:loc[3]]), true
	}
	return 0, false
}

// ExtractTiers 解析全部價格階梯，依數量遞增排序。
// 若描述含單價且沒有明示的數量 1 階梯，會補一個 synthetic 的 (1, 單價)。
func ExtractTiers(desc string) []Tier {
	var tiers []Tier
	hasUnit := false
	for _, m := range tierRe.FindAllStringSubmatch(desc, -1) {
		t := Tier{Quantity: atoi(m[1]), Price: atoi(m[3])}
		if t.Quantity < 1 {
			continue
		}
		if t.Quantity == 1 {
			hasUnit = true
		}
		tiers = append(tiers, t)
	}
	if !hasUnit {
		if unit, ok := ExtractUnitPrice(desc); ok {
			tiers = append(tiers, Tier{Quantity: 1, Price: unit})
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Quantity < tiers[j].Quantity })
	return tiers
}

// PriceFor 以貪婪法計算 quantity 份的最低總價：
// 由大到小吃整數倍的階梯，剩餘不足最小階梯時用單價；
// 沒有單價時以最小階梯等比折算後四捨五入（近似值，非精確）。
// 描述中沒有任何價格時回傳 (0, false)。
func PriceFor(desc string, quantity int) (int, bool) {
	tiers := ExtractTiers(desc)
	if len(tiers) == 0 || quantity < 1 {
		return 0, false
	}

	total := 0
	remaining := quantity
	for i := len(tiers) - 1; i >= 0 && remaining > 0; i-- {
		t := tiers[i]
		if t.Quantity == 1 {
			continue
		}
		n := remaining / t.Quantity
		total += n * t.Price
		remaining -= n * t.Quantity
	}
	if remaining > 0 {
		unit := tiers[0]
		if unit.Quantity == 1 {
			total += remaining * unit.Price
		} else {
			total += int(math.Round(float64(remaining) * float64(unit.Price) / float64(unit.Quantity)))
		}
	}
	return total, true
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
