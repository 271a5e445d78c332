// Package text 提供指令文字的前置正規化。
package text

import "strings"

// Normalize 全形英數符號 → 半形（處理中文輸入法打出的 ＋、１２３、＃ 等），
// 全形空白 U+3000 → 半形空白。其餘字元（含中文）原樣保留。
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 0xFF01 && r <= 0xFF5E:
			b.WriteRune(r - 0xFEE0)
		case r == '　':
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
