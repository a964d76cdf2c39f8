package ports

import "time"

// Clock supplies wall-clock epoch milliseconds.
type Clock interface {
	NowMillis() int64
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) NowMillis() int64 { return time.Now().UnixMilli() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) NowMillis() int64 { return f() }
