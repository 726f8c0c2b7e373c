package mqtt

import (
	"log"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"plant-monitor/backend/pkg/utils"
)

// SetLogger routes paho's package-level loggers to l. Paho's DEBUG output is
// left disabled.
func SetLogger(l *slog.Logger) {
	l = l.With(slog.String("component", "paho"))

	mqtt.CRITICAL = log.New(utils.NewSlogWriter(l).WithLevel(slog.LevelError), "", 0)
	mqtt.ERROR = log.New(utils.NewSlogWriter(l).WithLevel(slog.LevelError), "", 0)
	mqtt.WARN = log.New(utils.NewSlogWriter(l), "", 0)
}
