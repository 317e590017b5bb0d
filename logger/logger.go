package logger

import (
	"os"

	"go.uber.org/zap"
)

var Log *zap.SugaredLogger

// Init builds the global sugared logger. Set BOLTIS_DEV=1 for the
// human-readable development encoder.
func Init() {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("BOLTIS_DEV") != "" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}

// Sync flushes any buffered log entries.
func Sync() {
	if Log != nil {
		_ = Log.Sync()
	}
}
