package service

import (
	"cmp"
	"slices"

	"github.com/habitlog/internal/dateutil"
)

// CurrentStreak 从一组无序的打卡日期键推导截至 today 的连续天数。
// 同一天的多次打卡只计一次；连续段必须包含今天，或在昨天结束且中间无断档，
// 否则返回 0。纯函数，唯一的失败形态是日期键无法解析。
func CurrentStreak(dayKeys []string, today string) (int, error) {
	cursor, err := dateutil.ParseDayKey(today)
	if err != nil {
		return 0, err
	}

	keys, err := dedupeDayKeys(dayKeys)
	if err != nil {
		return 0, err
	}

	// 最近的日期排在最前，字典序即时间序
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Compare(b, a)
	})

	streak := 0
	for _, key := range keys {
		if key > today {
			// 晚于参考日的记录不参与当前连续段
			continue
		}

		day, err := dateutil.ParseDayKey(key)
		if err != nil {
			return 0, err
		}

		switch gap := int(cursor.Sub(day).Hours() / 24); gap {
		case 0:
			streak++
			cursor = cursor.AddDate(0, 0, -1)
		case 1:
			streak++
			cursor = day.AddDate(0, 0, -1)
		default:
			// 出现断档，更早的记录不再计入
			return streak, nil
		}
	}

	return streak, nil
}

// LongestStreak 返回历史上最长的连续打卡天数，与当前段是否延续无关。
func LongestStreak(dayKeys []string) (int, error) {
	keys, err := dedupeDayKeys(dayKeys)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	slices.Sort(keys)

	longest := 1
	run := 1
	for i := 1; i < len(keys); i++ {
		gap, err := dateutil.DaysBetween(keys[i-1], keys[i])
		if err != nil {
			return 0, err
		}
		if gap == 1 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}

	return longest, nil
}

func dedupeDayKeys(dayKeys []string) ([]string, error) {
	uniq := make(map[string]struct{}, len(dayKeys))
	keys := make([]string, 0, len(dayKeys))
	for _, key := range dayKeys {
		if _, err := dateutil.ParseDayKey(key); err != nil {
			return nil, err
		}
		if _, seen := uniq[key]; seen {
			continue
		}
		uniq[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}
