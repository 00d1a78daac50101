package logger

import (
	"os"

	"go.uber.org/zap"
)

var Log *zap.SugaredLogger

func Init() {
	var (
		l   *zap.Logger
		err error
	)
	if os.Getenv("RELAY_LOG_MODE") == "dev" {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = l.Sugar()
}
