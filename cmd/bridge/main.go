// Command bridge runs the Euphoria/Instant chat bridge: it is the
// thin, disposable wiring layer around internal/nexus, the Go
// equivalent of the Python original's main()/BotManager setup.
package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/chatbridge/nexus/internal/bridge"
	"github.com/chatbridge/nexus/internal/config"
	"github.com/chatbridge/nexus/internal/metrics"
	"github.com/chatbridge/nexus/internal/nexus"
	"github.com/chatbridge/nexus/internal/scheduler"
	"github.com/chatbridge/nexus/internal/store"
	"github.com/chatbridge/nexus/internal/surrogate"
)

func main() {
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Relay messages between a Euphoria room and an Instant room",
	}
	flags := config.RegisterFlags(cmd)
	cmd.RunE = func(c *cobra.Command, args []string) error { return run(flags) }
	cmd.SilenceUsage = true

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(flags *config.Flags) error {
	log := newLogger(flags.LogLevel)

	env, err := config.Load()
	if err != nil {
		return err
	}

	pragmaSync := ""
	if env.ValidSync() {
		pragmaSync = env.DBSync
	}

	st, err := store.Open(flags.DBPath, pragmaSync, log.WithField("component", "store"))
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	go serveMetrics(reg, log)

	sched := scheduler.New(log.WithField("component", "scheduler"))

	euphoriaURL := FormatEuphoriaURL(flags.EuphoriaRoom)
	instantURL := bridge.FormatRoomURL(env.InstantRoomTemplate, flags.InstantRoom)

	nx := nexus.New(st, sched, nil, flags.EuphoriaRoom, flags.InstantRoom, log)
	pool := surrogate.New(bridge.SurrogateFactory(euphoriaURL, instantURL, nx, log), log)
	nx.SetPool(pool)

	euphoriaBot, err := bridge.NewEuphoriaBridgeBot(euphoriaURL, flags.EuphoriaRoom, nexus.Nickname, nx, nil, log.WithField("bot", "euphoria-bridge"))
	if err != nil {
		return err
	}
	nx.SetEuphoriaBot(euphoriaBot)

	instantBot, err := bridge.NewInstantBridgeBot(instantURL, flags.InstantRoom, nexus.Nickname, nx, nil, log.WithField("bot", "instant-bridge"))
	if err != nil {
		return err
	}
	nx.SetInstantBot(instantBot)

	nx.Start()

	<-signalHandler(log)

	nx.Shutdown()
	nx.Join()
	return nx.Close()
}

// FormatEuphoriaURL builds a Heim room WebSocket URL for roomname.
func FormatEuphoriaURL(roomname string) string {
	return "wss://euphoria.leet.nu/room/" + roomname + "/ws"
}

func newLogger(level string) *logrus.Entry {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	return logrus.NewEntry(log)
}

func serveMetrics(reg *prometheus.Registry, log *logrus.Entry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(":9090", mux); err != nil {
		log.WithError(err).Warn("metrics server stopped")
	}
}
