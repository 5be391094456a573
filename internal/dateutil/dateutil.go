package dateutil

import (
	"errors"
	"fmt"
	"time"
)

// 日期键与提醒时间的线格式，所有边界必须原样使用
// YYYY-MM-DD 的字典序与时间序一致，排序逻辑依赖这一点
const (
	DayKeyFormat    = "2006-01-02"
	TimeOfDayFormat = "15:04"
)

var (
	// ErrInvalidDate 在日期键无法解析时返回
	ErrInvalidDate = errors.New("invalid day key")
	// ErrInvalidTimeOfDay 在提醒时间不是 HH:MM 时返回
	ErrInvalidTimeOfDay = errors.New("invalid time of day")
)

// DayKey 将任意时刻映射到其所属日历日的键。
// 全系统统一使用 UTC 作为日界参考，避免本地时区混用导致的午夜边界问题。
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyFormat)
}

// TodayKey 返回当前时刻（UTC）对应的日期键。
func TodayKey() string {
	return DayKey(time.Now())
}

// ParseDayKey 解析 YYYY-MM-DD 日期键，返回对应 UTC 零点。
func ParseDayKey(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DayKeyFormat, key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, key)
	}
	return t, nil
}

// DaysBetween 返回两个日期键之间相隔的日历天数，恒为非负。
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseDayKey(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseDayKey(b)
	if err != nil {
		return 0, err
	}

	days := int(tb.Sub(ta).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days, nil
}

// AddDays 在日期键上偏移 n 天（可为负）。
func AddDays(key string, n int) (string, error) {
	t, err := ParseDayKey(key)
	if err != nil {
		return "", err
	}
	return DayKey(t.AddDate(0, 0, n)), nil
}

// IsToday 判断日期键是否为今天（UTC）。
func IsToday(key string) bool {
	return key == TodayKey()
}

// IsYesterday 判断日期键是否为昨天（UTC）。
func IsYesterday(key string) bool {
	return key == DayKey(time.Now().AddDate(0, 0, -1))
}

// ParseTimeOfDay 校验 HH:MM 提醒时间。
// time.Parse 对非补零的小时过于宽松，这里要求严格的 5 位形式。
func ParseTimeOfDay(value string) (string, error) {
	t, err := time.Parse(TimeOfDayFormat, value)
	if err != nil || len(value) != len(TimeOfDayFormat) {
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, value)
	}
	return t.Format(TimeOfDayFormat), nil
}
