package queue

import (
	"encoding/json"
	"math"
)

// Seconds 以秒计的时长。播放端上报的小数按四舍五入取整。
type Seconds int

// UnmarshalJSON 接受整数或小数，null 保持原值
func (s *Seconds) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	switch {
	case f > math.MaxInt32:
		f = math.MaxInt32
	case f < math.MinInt32:
		f = math.MinInt32
	}
	*s = Seconds(math.Round(f))
	return nil
}

// Ptr 转为 *int，nil 保持 nil
func (s *Seconds) Ptr() *int {
	if s == nil {
		return nil
	}
	n := int(*s)
	return &n
}
