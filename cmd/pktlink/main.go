package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/pktlink/pkg/link"
	"github.com/norasector/pktlink/pkg/link/config"
	"github.com/norasector/pktlink/pkg/link/device"
	"github.com/norasector/pktlink/pkg/link/device/file"
	"github.com/norasector/pktlink/pkg/link/device/loopback"
	"github.com/norasector/pktlink/pkg/link/device/serial"
	"github.com/norasector/pktlink/pkg/link/output"
	"github.com/norasector/pktlink/pkg/link/status"
	"github.com/norasector/pktlink/pkg/util"
	"golang.org/x/sync/errgroup"
)

const fileReadDelay = time.Millisecond

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if cfg.Log.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		})
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger().Level(level)
}

func newDevice(cfg *config.Config, writeAPI api.WriteAPI, statusServer *status.Server) (device.Device, error) {
	switch cfg.Device {
	case config.DeviceFile:
		log.Info().Str("device", "file").Msg("initializing device...")
		return file.NewFileDevice(cfg.PlaybackLocation, cfg.RecordLocation, cfg.ChunkSize, fileReadDelay,
			file.WithLogger(log.Logger))
	case config.DeviceSerial:
		log.Info().Str("device", "serial").Str("port", cfg.Serial.Port).Msg("initializing device...")
		opts := []serial.SerialOption{serial.WithLogger(log.Logger)}
		if cfg.Serial.DrainTimeout != 0 {
			opts = append(opts, serial.WithDrainTimeout(max(cfg.Serial.DrainTimeout, 0)))
		}
		return serial.NewSerialDevice(cfg.Serial.Port, cfg.Serial.BaudRate, opts...)
	default:
		log.Info().Str("device", "loopback").Msg("initializing device...")
		opts := []loopback.LoopbackOption{loopback.WithInfluxDB(writeAPI), loopback.WithLogger(log.Logger)}
		if statusServer != nil {
			opts = append(opts, loopback.WithPlots(statusServer))
		}
		return loopback.NewLoopbackDevice(loopback.Options{
			SamplesPerSymbol: cfg.SamplesPerSymbol,
			SymbolRate:       cfg.SymbolRate,
			NoiseSigma:       cfg.NoiseSigma,
			NoiseSeed:        cfg.NoiseSeed,
			ChunkSize:        cfg.ChunkSize,
			ChannelCutoff:    cfg.ChannelCutoff,
			Modulation:       cfg.Modulation,
			FrequencyOffset:  cfg.FrequencyOffset,
		}, opts...)
	}
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	configFile := flag.String("config", "pktlink.yaml", "YAML config file")

	flag.Parse()
	if configFile == nil {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error loading config file")
	}
	setupLogger(cfg)

	var writeAPI api.WriteAPI = &util.MockWriteAPI{}
	if cfg.InfluxDB.Host != "" {
		client := influxdb2.NewClient(cfg.InfluxDB.Host, "")
		defer client.Close()
		writeAPI = client.WriteAPI(cfg.InfluxDB.Organization, cfg.InfluxDB.Bucket)
		defer writeAPI.Flush()
	}

	var statusServer *status.Server
	if cfg.StatusServer.Port > 0 {
		statusServer = status.NewServer(cfg.StatusServer.Port)
	}

	dev, err := newDevice(cfg, writeAPI, statusServer)
	if err != nil {
		log.Fatal().Str("device", cfg.Device).Err(err).Msg("failed to initialize device")
	}

	outputs := []output.Output{output.NewSimpleOutput(os.Stdout, output.WithFailures())}
	if len(cfg.OutputDestinations) > 0 {
		outputs = append(outputs, output.NewUDPOutput(cfg.OutputDestinations,
			output.WithMetrics(writeAPI), output.WithLogger(log.Logger)))
	}

	linkOpts := []link.LinkOption{
		link.WithInfluxDB(writeAPI),
		link.WithOutputs(outputs...),
		link.WithLogger(log.Logger),
	}
	if statusServer != nil {
		linkOpts = append(linkOpts, link.WithStatusServer(statusServer))
	}

	l, err := link.NewLink(dev, link.OptionsFromConfig(cfg), linkOpts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create link")
	}

	input := io.Reader(os.Stdin)
	if cfg.InputFile != "" {
		f, err := os.Open(cfg.InputFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open input file")
		}
		defer f.Close()
		input = f
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	eg.Go(func() error {
		select {
		case <-sigChan:
		case <-ctx.Done():
		}

		return l.Stop()
	})

	eg.Go(func() error {
		defer cancel()
		return l.Start(ctx)
	})

	eg.Go(func() error {
		var ok, failed int
		for r := range l.Received() {
			if r.OK() {
				ok++
			} else {
				failed++
			}
		}
		log.Info().Int("ok", ok).Int("failed", failed).Msg("all packets accounted for")
		return nil
	})

	// Not part of the group: a read from stdin cannot be interrupted.
	go func() {
		n, err := feedInput(ctx, input, l)
		if err != nil {
			log.Error().Err(err).Int("lines", n).Msg("input stopped")
			return
		}
		log.Debug().Int("lines", n).Msg("input exhausted")
	}()

	if err := eg.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("exited program")
	}
}
