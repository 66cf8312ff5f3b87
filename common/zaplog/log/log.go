// Package log exposes the shared zap logger with the short helpers used
// across the codebase. Info2/Error2 take structured fields, the printf
// variants are for quick diagnostics.
package log

import (
	"github.com/ispbillingai/acs-sub000/common/zaplog"
	"go.uber.org/zap"
)

func Info(args ...interface{}) {
	zaplog.Logger().Sugar().Info(args...)
}

func Infof(template string, args ...interface{}) {
	zaplog.Logger().Sugar().Infof(template, args...)
}

func Warnf(template string, args ...interface{}) {
	zaplog.Logger().Sugar().Warnf(template, args...)
}

func Error(args ...interface{}) {
	zaplog.Logger().Sugar().Error(args...)
}

func Errorf(template string, args ...interface{}) {
	zaplog.Logger().Sugar().Errorf(template, args...)
}

func Info2(msg string, fields ...zap.Field) {
	zaplog.Logger().Info(msg, fields...)
}

func Error2(msg string, fields ...zap.Field) {
	zaplog.Logger().Error(msg, fields...)
}
