package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var L *zap.SugaredLogger

func init() {
	// Safe default so packages can log before Init (and under `go test`).
	L = zap.NewNop().Sugar()
}

// Init routes logs to a rotating file. Console output stays reserved for
// the interactive listener.
func Init(logFilePath string) error {
	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    20, // MB
		MaxBackups: 3,
		MaxAge:     14, // days
	})

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), w, zapcore.InfoLevel)

	L = zap.New(core).Sugar()
	L.Infow("logger initialized", "file", logFilePath)
	return nil
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = L.Sync()
}
