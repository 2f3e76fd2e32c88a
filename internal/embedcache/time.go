package embedcache

import "time"

func nowEpoch() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
