package statscache

import (
	"context"
	"errors"

	"edustat-engine/internal/stats"
)

// Failure is what the UI shows instead of a raw transport error.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	KindTransport = "transport_failure"
	KindTimeout   = "timeout"
	KindTruncated = "truncated"
	KindShutdown  = "shutdown"
)

func classify(err error) *Failure {
	switch {
	case errors.Is(err, stats.ErrTruncated):
		return &Failure{Kind: KindTruncated, Message: "Данных слишком много: статистика посчитана не по всем вакансиям."}
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: KindTimeout, Message: "Сервер не ответил вовремя. Попробуйте обновить позже."}
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: KindShutdown, Message: "Загрузка статистики прервана."}
	default:
		return &Failure{Kind: KindTransport, Message: "Не удалось загрузить статистику. Проверьте подключение и попробуйте снова."}
	}
}
