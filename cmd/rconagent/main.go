// Command rconagent connects to a single BattlEye-style RCON server,
// maintains the session, and optionally exposes telemetry and an
// introspection API for it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/kongor-project/bercon/internal/api"
	"github.com/kongor-project/bercon/internal/config"
	"github.com/kongor-project/bercon/internal/events"
	"github.com/kongor-project/bercon/internal/session"
	"github.com/kongor-project/bercon/internal/telemetry"
	"github.com/kongor-project/bercon/internal/util"
)

const (
	AppName    = "rconagent"
	AppVersion = "1.0.0"
)

func main() {
	var (
		host          = flag.String("host", "", "RCON server host (required)")
		port          = flag.Uint("port", 2302, "RCON server port")
		password      = flag.String("password", "", "RCON password (required)")
		autoReconnect = flag.Bool("reconnect", true, "automatically reconnect on non-fatal disconnect")
		pollInterval  = flag.Duration("poll-interval", config.DefaultPlayerUpdateInterval, "roster poll interval")
		logLevel      = flag.String("log-level", "info", "log level (debug, info, warn, error)")
		logDir        = flag.String("log-dir", "logs", "directory for log files")
		apiEnabled    = flag.Bool("api", false, "enable the introspection API")
		apiAddr       = flag.String("api-addr", ":8080", "introspection API listen address")
		mqttEnabled   = flag.Bool("mqtt", false, "enable MQTT telemetry")
		mqttBroker    = flag.String("mqtt-broker", "", "MQTT broker host")
		mqttPort      = flag.Int("mqtt-port", 8883, "MQTT broker port")
		quiet         = flag.Bool("quiet", false, "disable the interactive console roster table")
	)
	flag.Parse()

	logOpts := config.DefaultLogOptions()
	logOpts.Level = *logLevel
	logOpts.Directory = *logDir
	logger, closeLogs, err := util.NewLogger(logOpts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLogs()
	log := logger.With().Str("app", AppName).Logger()

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting rconagent")

	if *host == "" || *password == "" {
		log.Fatal().Msg("-host and -password are required")
	}

	opts := config.Options{
		Host:                 *host,
		Port:                 uint16(*port),
		Password:             *password,
		AutoReconnect:        *autoReconnect,
		PlayerUpdateInterval: *pollInterval,
	}

	if result := config.Validate(opts); !result.IsValid() {
		for _, e := range result.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Fatal().Msg("invalid configuration")
	}
	opts = opts.Normalize()

	sess := session.New(opts, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if *apiEnabled {
		apiServer := api.NewServer(config.APIOptions{
			Enabled:       true,
			ListenAddress: *apiAddr,
		}, sess, log)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("introspection API stopped")
			}
		}()
	}

	if *mqttEnabled {
		mqttHandler, err := telemetry.NewMQTTHandler(config.MQTTOptions{
			Enabled:   true,
			BrokerURL: *mqttBroker,
			Port:      *mqttPort,
			UseTLS:    true,
		}, sess.ID(), sess.Events(), log)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		} else {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := mqttHandler.Start(ctx); err != nil {
					log.Warn().Err(err).Msg("MQTT telemetry stopped")
				}
			}()
		}
	}

	if !*quiet {
		sess.Events().Subscribe(events.TypePlayers, "console", printRoster)
	}

	log.Info().Str("address", opts.Address()).Msg("connecting")
	sess.Connect()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, closing session")
	sess.Close("shutdown", true)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timed out after 10 seconds, forcing exit")
	}

	log.Info().Msg("rconagent stopped")
}

// printRoster renders the current roster as a console table.
func printRoster(e events.Event) {
	snap := e.Payload.(events.PlayersPayload).Snapshot

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"ID", "Name", "IP", "Ping", "GUID", "Verified", "Lobby"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, p := range snap.Players {
		verified := "no"
		if p.Verified {
			verified = "yes"
		}
		lobby := ""
		if p.Lobby {
			lobby = "yes"
		}
		tw.Append([]string{
			fmt.Sprintf("%d", p.ID),
			p.Name,
			p.IP,
			fmt.Sprintf("%d", p.Ping),
			p.GUID,
			verified,
			lobby,
		})
	}

	fmt.Println()
	tw.Render()
	fmt.Println()
}
