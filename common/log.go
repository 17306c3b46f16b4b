package common

import (
	"os"

	"github.com/sirupsen/logrus"
)

// global accessible logger
var (
	logger *logrus.Logger
	Log    *logrus.Entry
)

// Tests never run main, so the logger must exist before InitLogger is called.
func init() {
	InitLogger("info")
}

func InitLogger(level string) {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	if Env() != defaultEnv {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	if lvl, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lvl)
	}

	Log = logger.WithFields(logrus.Fields{"service": "weblog", "env": Env()})
}
