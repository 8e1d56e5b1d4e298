package cmd

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bitfeed/internal/circuitbreaker"
	"bitfeed/internal/events"
	"bitfeed/internal/kafka"
	"bitfeed/internal/logger"
	"bitfeed/internal/metrics"
	"bitfeed/internal/stream"
	"bitfeed/internal/system"
	"bitfeed/internal/ui"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Connect to the exchange and stream market data",
	Run:   runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	f := startCmd.Flags()
	f.String("url", stream.DefaultURL, "WebSocket endpoint")
	f.StringSlice("symbols", []string{"tBTCUSD"}, "symbols to stream, e.g. tBTCUSD,tETHUSD")
	f.Bool("books", true, "subscribe to order book channels")
	f.Bool("tickers", true, "subscribe to ticker channels")
	f.String("metrics-addr", ":9090", "metrics listen address (empty disables)")
	f.StringSlice("kafka-brokers", nil, "Kafka broker addresses (empty disables publishing)")
	f.String("kafka-topic-prefix", "bitfeed", "prefix for Kafka topic names")
	f.Int("kafka-pool-size", 2, "number of pooled Kafka producers")
	f.Bool("watch", false, "render a live console view")

	viper.BindPFlag("stream.url", f.Lookup("url"))
	viper.BindPFlag("stream.symbols", f.Lookup("symbols"))
	viper.BindPFlag("stream.books", f.Lookup("books"))
	viper.BindPFlag("stream.tickers", f.Lookup("tickers"))
	viper.BindPFlag("metrics.addr", f.Lookup("metrics-addr"))
	viper.BindPFlag("kafka.brokers", f.Lookup("kafka-brokers"))
	viper.BindPFlag("kafka.topic_prefix", f.Lookup("kafka-topic-prefix"))
	viper.BindPFlag("kafka.pool_size", f.Lookup("kafka-pool-size"))
	viper.BindPFlag("ui.watch", f.Lookup("watch"))
}

func runStart(cmd *cobra.Command, args []string) {
	log := logger.WithComponent("main")

	if cpu := viper.GetString("profile.cpu"); cpu != "" {
		stop, err := system.StartCPUProfile(cpu)
		if err != nil {
			log.WithError(err).Fatal("cpu profiling")
		}
		defer stop()
	}
	defer func() {
		if mem := viper.GetString("profile.mem"); mem != "" {
			if err := system.WriteHeapProfile(mem); err != nil {
				log.WithError(err).Error("heap profile")
			}
		}
	}()

	system.LoadFromViper().Apply()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	bus := events.NewEventBus()
	defer bus.Shutdown()

	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)

	var wg sync.WaitGroup
	if addr := viper.GetString("metrics.addr"); addr != "" {
		srv := metrics.NewServer(addr, prometheus.DefaultGatherer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				log.WithError(err).Error("metrics server")
				cancel()
			}
		}()
	}

	if brokers := viper.GetStringSlice("kafka.brokers"); len(brokers) > 0 {
		pool, err := kafka.NewProducerPool(brokers, viper.GetInt("kafka.pool_size"))
		if err != nil {
			log.WithError(err).Fatal("connecting to kafka")
		}
		defer pool.Close()

		publisher := kafka.NewPublisher(bus, pool, kafka.PublisherConfig{
			TopicPrefix: viper.GetString("kafka.topic_prefix"),
			Breaker:     circuitbreaker.New(5, 30*time.Second),
			Recorder:    rec,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(ctx)
		}()
	}

	if viper.GetBool("ui.watch") {
		updater := ui.NewUpdater(bus, os.Stdout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			updater.Run(ctx)
		}()
	}

	cfg := stream.DefaultConfig()
	cfg.URL = viper.GetString("stream.url")
	client := stream.New(cfg, stream.WithBus(bus), stream.WithMetrics(rec))

	symbols := viper.GetStringSlice("stream.symbols")
	for _, symbol := range symbols {
		if viper.GetBool("stream.tickers") {
			if err := client.SubscribeTicker(symbol); err != nil {
				log.WithError(err).WithField("symbol", symbol).Fatal("subscribe ticker")
			}
		}
		if viper.GetBool("stream.books") {
			if err := client.SubscribeBook(symbol); err != nil {
				log.WithError(err).WithField("symbol", symbol).Fatal("subscribe book")
			}
		}
	}

	if err := client.Connect(ctx); err != nil {
		log.WithError(err).Fatal("connect")
	}

	<-ctx.Done()
	if err := client.Close(); err != nil {
		log.WithError(err).Warn("close")
	}
	wg.Wait()
	log.Info("shutdown complete")
}
