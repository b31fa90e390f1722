package csms

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// FormatCents 分 -> "12.50"
func FormatCents(cents int64) Decimal {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return Decimal(fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100))
}

// ParseCents "12.5" / "12" / "-0.07" -> 分，超过两位小数按四舍五入
func ParseCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return int64(math.Round(f * 100)), nil
}

// FormatFloat 坐标/功率等浮点数转字符串，nil 返回空
func FormatFloat(v *float64) Decimal {
	if v == nil {
		return ""
	}
	return Decimal(strconv.FormatFloat(*v, 'f', -1, 64))
}

// FormatDate ISO-8601（UTC）
func FormatDate(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
