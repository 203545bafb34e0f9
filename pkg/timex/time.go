// Package timex provides a UTC timestamp that tolerates the layouts used by SQLite and document stores
// Package timex 提供兼容 SQLite 与文档存储多种格式的 UTC 时间类型
package timex

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layout wire layout, millisecond precision in UTC
// Layout 传输格式，UTC 毫秒精度
const Layout = "2006-01-02 15:04:05.000Z"

var parseLayouts = []string{
	Layout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Time UTC timestamp
type Time time.Time

// Now 当前 UTC 时间
func Now() Time {
	return Time(time.Now().UTC())
}

// Parse reads any supported layout; values without zone are taken as UTC
// Parse 解析支持的任意格式，无时区的值按 UTC 处理
func Parse(s string) (Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Time{}, nil
	}
	for _, layout := range parseLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return Time(t.UTC()), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Time(time.UnixMilli(ms).UTC()), nil
	}
	return Time{}, fmt.Errorf("timex: unsupported time format %q", s)
}

func (t Time) Time() time.Time {
	return time.Time(t)
}

func (t Time) IsZero() bool {
	return time.Time(t).IsZero()
}

func (t Time) Unix() int64 {
	return time.Time(t).Unix()
}

func (t Time) UnixMilli() int64 {
	return time.Time(t).UnixMilli()
}

func (t Time) UnixMicro() int64 {
	return time.Time(t).UnixMicro()
}

func (t Time) UnixNano() int64 {
	return time.Time(t).UnixNano()
}

func (t Time) String() string {
	if t.IsZero() {
		return ""
	}
	return time.Time(t).UTC().Format(Layout)
}

// MarshalJSON writes Layout, zero time as an empty string
// MarshalJSON 输出 Layout 格式，零值输出空字符串
func (t Time) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(t.String())), nil
}

// UnmarshalJSON accepts any supported layout, a millisecond number, or null
// UnmarshalJSON 接受支持的格式、毫秒数字或 null
func (t *Time) UnmarshalJSON(data []byte) error {
	s := string(data)
	if s == "null" {
		*t = Time{}
		return nil
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// GormDataType lets each dialect pick its native time column type
// GormDataType 由各数据库方言选择原生时间类型
func (Time) GormDataType() string {
	return "time"
}

// Value stores the timestamp as a time.Time
func (t Time) Value() (driver.Value, error) {
	if t.IsZero() {
		return nil, nil
	}
	return time.Time(t).UTC(), nil
}

// Scan reads time values as well as the text layouts SQLite drivers hand back
// Scan 读取 time 值以及 SQLite 驱动返回的文本格式
func (t *Time) Scan(v interface{}) error {
	switch val := v.(type) {
	case nil:
		*t = Time{}
		return nil
	case time.Time:
		*t = Time(val.UTC())
		return nil
	case string:
		parsed, err := Parse(val)
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(val))
		if err != nil {
			return err
		}
		*t = parsed
		return nil
	}
	return fmt.Errorf("timex: cannot scan %T", v)
}
