package config

import (
	"os"

	"github.com/sirupsen/logrus"
)

var logg *logrus.Logger

// GetLogger returns the shared application logger
func GetLogger() *logrus.Logger {
	return logg
}

func init() {
	logg = logrus.New()
	logg.SetFormatter(&logrus.JSONFormatter{})
	logg.SetOutput(os.Stdout)
	if os.Getenv("NODE_ENV") == "production" {
		logg.SetLevel(logrus.InfoLevel)
	} else {
		logg.SetLevel(logrus.DebugLevel)
	}
}
