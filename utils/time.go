package utils

import (
	"time"
)

// WithinWindow 判断当前时刻是否落在 [start, end) 小时窗口内。
// start == end 视为全天；start > end 表示跨午夜窗口（如 [20, 8)）。
func WithinWindow(now time.Time, startHour, endHour float64) bool {
	if startHour == endHour {
		return true
	}

	h := float64(now.Hour()) + float64(now.Minute())/60.0
	if startHour < endHour {
		return h >= startHour && h < endHour
	}
	return h >= startHour || h < endHour
}
