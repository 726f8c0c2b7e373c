// Package main is feedsim, a CLI that publishes simulated soil and light
// readings to an MQTT broker in the Adafruit IO feed layout.
//
// Usage:
//
//	feedsim --broker tcp://127.0.0.1:1883 --user local
//	feedsim --interval 500ms --count 100
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"plant-monitor/backend/internal/history"
	"plant-monitor/backend/internal/ingest"
	"plant-monitor/backend/pkg/apidoc"
	"plant-monitor/backend/pkg/mqtt"
	"plant-monitor/backend/pkg/utils"
)

type options struct {
	broker    string
	clientID  string
	username  string
	password  string
	user      string
	soilFeed  string
	lightFeed string
	interval  time.Duration
	count     int
	verbose   bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "feedsim",
		Short: "Publish simulated plant sensor readings",
		Long: `feedsim publishes random-walk soil moisture and light readings to
<user>/feeds/<feed> on an MQTT broker, the layout the relay subscribes to.

Point it at the relay's embedded broker (MQTT_EMBEDDED_BROKER=true) to run the
whole system offline.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cmd.ErrOrStderr(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.broker, "broker", "tcp://127.0.0.1:1883", "MQTT broker URL")
	f.StringVar(&opts.clientID, "client-id", "plant-monitor-feedsim", "MQTT client ID")
	f.StringVar(&opts.username, "username", "", "MQTT username")
	f.StringVar(&opts.password, "password", "", "MQTT password")
	f.StringVarP(&opts.user, "user", "u", "local", "feed owner, the first topic level")
	f.StringVar(&opts.soilFeed, "soil-feed", string(history.ChannelSoil), "soil feed name")
	f.StringVar(&opts.lightFeed, "light-feed", string(history.ChannelLight), "light feed name")
	f.DurationVarP(&opts.interval, "interval", "i", 2*time.Second, "time between readings")
	f.IntVarP(&opts.count, "count", "n", 0, "readings per feed, 0 runs until interrupted")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "log every published reading")

	return cmd
}

func run(ctx context.Context, out io.Writer, opts options) error {
	if opts.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", opts.interval)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}

	l := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level, ReplaceAttr: utils.SlogReplacer}))
	mqtt.SetLogger(l)

	mb, err := mqtt.NewMQTTBuilder(l, &apidoc.NoopCollector{}, mqtt.MQTTClientOptions{
		BrokerURL: opts.broker,
		ClientID:  opts.clientID,
		Username:  opts.username,
		Password:  opts.password,
	})
	if err != nil {
		return err
	}

	sims := []*sensor{
		newSensor(history.ChannelSoil, ingest.FeedTopic(opts.user, opts.soilFeed), 45, 0, 100, 1.5),
		newSensor(history.ChannelLight, ingest.FeedTopic(opts.user, opts.lightFeed), 400, 0, 1000, 25),
	}

	for _, s := range sims {
		if err := mb.RegisterPublish(s.topic, mqtt.PublicationSpec{
			OperationID: s.operationID(),
			Summary:     "Publish simulated " + string(s.channel) + " reading",
			Description: "Random-walk " + string(s.channel) + " value published as decimal text",
			Group:       "Simulation",
			MessageType: new(float64),
			QoS:         mqtt.QoSAtMostOnce,
		}); err != nil {
			return err
		}
	}

	if err := mb.Connect(ctx); err != nil {
		return err
	}
	defer mb.Disconnect()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for sent := 0; opts.count == 0 || sent < opts.count; sent++ {
		for _, s := range sims {
			value := s.next()

			if err := mb.Client().Publish(ctx, s.operationID(), s.topic, strconv.FormatFloat(value, 'f', 1, 64)); err != nil {
				return err
			}

			l.Debug("published", slog.String("topic", s.topic), slog.Float64("value", value))
		}

		select {
		case <-ctx.Done():
			l.Info("stopped", slog.Int("rounds", sent+1))
			return nil
		case <-ticker.C:
		}
	}

	l.Info("done", slog.Int("rounds", opts.count))

	return nil
}

// sensor is a bounded random walk.
type sensor struct {
	channel  history.Channel
	topic    string
	value    float64
	min, max float64
	step     float64
	rnd      *rand.Rand
}

func newSensor(ch history.Channel, topic string, start, lo, hi, step float64) *sensor {
	return &sensor{
		channel: ch,
		topic:   topic,
		value:   start,
		min:     lo,
		max:     hi,
		step:    step,
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // simulated data
	}
}

func (s *sensor) operationID() string {
	return "publishSimulated" + cases.Title(language.English).String(string(s.channel))
}

func (s *sensor) next() float64 {
	s.value += (s.rnd.Float64()*2 - 1) * s.step
	s.value = max(s.min, min(s.max, s.value))

	return s.value
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}
