package util

import "time"

// Clock отделяет время вставки от time.Now, чтобы его можно было зафиксировать в тестах.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock всегда возвращает одно и то же время.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }
