package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/catalog"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/datastore"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/eventbus"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/history"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/ota"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/server"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/service"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/source"
	"github.com/logicpi/mcu-ota-server/cmd/mcu-ota-server/internal/telemetry"
	"github.com/metal-stack/v"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const (
	cfgFileType     = "yaml"
	shutdownTimeout = 10 * time.Second
)

var (
	cfgFile string
	logger  *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:     "mcu-ota-server",
	Short:   "serves firmware updates to micro controllers over tcp",
	Version: v.V.String(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
	SilenceUsage: true,
}

var historyCmd = &cobra.Command{
	Use:   "history [device-id]",
	Short: "print recorded upgrade outcomes, optionally of one device given in hex",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return printHistory(args)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if logger != nil {
			logger.Errorw("failed executing root command", "error", err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "alternative path to config file")
	rootCmd.PersistentFlags().StringP("log-level", "", "info", "the application log level")

	rootCmd.Flags().StringP("bind-addr", "", server.DefaultBindAddress, "the bind addr of the device listener")
	rootCmd.Flags().IntP("port", "", server.DefaultPort, "the port to serve devices on")
	rootCmd.Flags().Duration("idle-timeout", server.DefaultIdleTimeout, "close device connections that are silent for this long")
	rootCmd.Flags().Duration("refresh-interval", catalog.DefaultRefreshInterval, "the interval to reload the firmware catalog")

	rootCmd.Flags().StringP("fw-source", "", "http", "where firmware images come from [http|s3]")
	rootCmd.Flags().StringP("fw-server", "", "http://localhost:8080", "the base url of the firmware server")
	rootCmd.Flags().StringP("s3-address", "", "", "the url of the s3 server that provides firmware images")
	rootCmd.Flags().StringP("s3-key", "", "", "the s3 access key")
	rootCmd.Flags().StringP("s3-secret", "", "", "the s3 secret key")
	rootCmd.Flags().StringP("s3-firmware-bucket", "", "firmware", "the bucket holding firmware images")

	rootCmd.PersistentFlags().StringP("db", "", "rethinkdb", "the database adapter to use [rethinkdb|sqlite]")
	rootCmd.PersistentFlags().StringP("db-name", "", "mcuota", "the database name to use")
	rootCmd.PersistentFlags().StringP("db-addr", "", "localhost:28015", "the database address string to use")
	rootCmd.PersistentFlags().StringP("db-user", "", "", "the database user to use")
	rootCmd.PersistentFlags().StringP("db-password", "", "", "the database password to use")
	rootCmd.PersistentFlags().StringP("db-path", "", "mcu-ota.db", "the sqlite database file")

	rootCmd.Flags().StringP("nsqd-addr", "", "", "the address of the nsqd, empty disables upgrade events")

	rootCmd.Flags().StringP("http-addr", "", ":2112", "the address of the http endpoint for health, catalog, history and metrics, empty disables it")
	rootCmd.Flags().StringP("otlp-endpoint", "", "", "the host:port of an otlp http collector, empty disables tracing")
	rootCmd.Flags().Bool("otlp-insecure", false, "send traces without tls")
	rootCmd.Flags().Float64("trace-sample-ratio", 1, "the share of traces that is sampled")

	rootCmd.AddCommand(historyCmd)

	if err := viper.BindPFlags(rootCmd.Flags()); err != nil {
		panic(err)
	}
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

func initConfig() {
	// a missing .env file is fine
	_ = godotenv.Load()

	viper.SetEnvPrefix("MCU_OTA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	viper.SetConfigType(cfgFileType)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "config file path set explicitly, but unreadable: %v\n", err)
			os.Exit(1)
		}
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath("/etc/mcu-ota-server")
		viper.AddConfigPath("$HOME/.mcu-ota-server")
		viper.AddConfigPath(".")
		if err := viper.ReadInConfig(); err != nil {
			usedCfg := viper.ConfigFileUsed()
			if usedCfg != "" {
				fmt.Fprintf(os.Stderr, "config file %s unreadable: %v\n", usedCfg, err)
			}
		}
	}
}

func initLogging() error {
	level, err := zapcore.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("unparsable log level %q: %w", viper.GetString("log-level"), err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("cannot create logger: %w", err)
	}
	logger = l.Sugar().With("app", "mcu-ota-server")

	if used := viper.ConfigFileUsed(); used != "" {
		logger.Infow("read config file", "config-file", used)
	}
	return nil
}

func initDataStore(ctx context.Context) (datastore.HistoryStore, error) {
	switch dbAdapter := viper.GetString("db"); dbAdapter {
	case "rethinkdb":
		ds := datastore.New(
			logger,
			viper.GetString("db-addr"),
			viper.GetString("db-name"),
			viper.GetString("db-user"),
			viper.GetString("db-password"),
		)
		if err := ds.Connect(ctx); err != nil {
			return nil, fmt.Errorf("cannot connect to data store: %w", err)
		}
		if err := ds.Initialize(ctx); err != nil {
			_ = ds.Close()
			return nil, fmt.Errorf("error initializing data store tables: %w", err)
		}
		return ds, nil
	case "sqlite":
		return datastore.NewSQLite(ctx, logger, viper.GetString("db-path"))
	default:
		return nil, fmt.Errorf("database not supported: %s", dbAdapter)
	}
}

func initEventBus(ctx context.Context) (eventbus.Publisher, error) {
	nsqd := viper.GetString("nsqd-addr")
	if nsqd == "" {
		logger.Infow("no nsqd configured, upgrade events are not published")
		return nil, nil
	}

	client := eventbus.NewNSQ(logger, nsqd, eventbus.NewNSQPublisher)
	if err := client.WaitForPublisher(ctx); err != nil {
		return nil, err
	}
	return client.Publisher, nil
}

func initSources() (catalog.Source, catalog.ConfigSource, error) {
	var configs catalog.ConfigSource
	if fwServer := viper.GetString("fw-server"); fwServer != "" {
		h, err := source.NewHTTP(logger, fwServer)
		if err != nil {
			return nil, nil, err
		}
		configs = h
	}

	switch fwSource := viper.GetString("fw-source"); fwSource {
	case "http":
		h, ok := configs.(*source.HTTP)
		if !ok {
			return nil, nil, errors.New("fw-server is required for the http firmware source")
		}
		return h, configs, nil
	case "s3":
		s, err := source.NewS3(source.S3Config{
			Log:    logger,
			Url:    viper.GetString("s3-address"),
			Key:    viper.GetString("s3-key"),
			Secret: viper.GetString("s3-secret"),
			Bucket: viper.GetString("s3-firmware-bucket"),
		})
		if err != nil {
			return nil, nil, err
		}
		return s, configs, nil
	default:
		return nil, nil, fmt.Errorf("firmware source not supported: %s", fwSource)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("starting mcu-ota-server", "version", v.V.String())

	tracer, shutdownTracing, err := telemetry.Initialize(ctx, telemetry.Config{
		ServiceVersion: v.Version,
		Endpoint:       viper.GetString("otlp-endpoint"),
		Insecure:       viper.GetBool("otlp-insecure"),
		SampleRatio:    viper.GetFloat64("trace-sample-ratio"),
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Errorw("cannot flush traces", "error", err)
		}
	}()

	ds, err := initDataStore(ctx)
	if err != nil {
		return err
	}
	defer ds.Close()

	publisher, err := initEventBus(ctx)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Stop()
	}

	fwSource, configSource, err := initSources()
	if err != nil {
		return err
	}

	store := catalog.NewStore()
	refresher, err := catalog.NewRefresher(&catalog.RefresherConfig{
		Log:      logger,
		Store:    store,
		Source:   fwSource,
		Configs:  configSource,
		Interval: viper.GetDuration("refresh-interval"),
	})
	if err != nil {
		return err
	}

	srv, err := server.NewServer(&server.ServerConfig{
		Logger:      logger,
		Store:       store,
		Recorder:    history.NewStoreRecorder(logger, ds, publisher),
		BindAddress: viper.GetString("bind-addr"),
		Port:        viper.GetInt("port"),
		IdleTimeout: viper.GetDuration("idle-timeout"),
		Tracer:      tracer,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return refresher.Run(gctx)
	})
	g.Go(func() error {
		return srv.Serve(gctx)
	})
	if addr := viper.GetString("http-addr"); addr != "" {
		g.Go(func() error {
			return serveHTTP(gctx, addr, service.NewContainer(logger, ds, store, v.V.String()))
		})
	}

	err = g.Wait()
	logger.Infow("mcu-ota-server stopped", "error", err)
	return err
}

func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Minute,
	}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(sctx); err != nil {
			logger.Errorw("cannot shut down http server", "error", err)
		}
	}()

	logger.Infow("serving http", "addr", addr)
	if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

func printHistory(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ds, err := initDataStore(ctx)
	if err != nil {
		return err
	}
	defer ds.Close()

	var hs []ota.UpgradeHistory
	if len(args) == 0 {
		hs, err = ds.ListUpgradeHistory(ctx)
	} else {
		var id uint64
		id, err = strconv.ParseUint(args[0], 16, 64)
		if err != nil {
			return fmt.Errorf("device id %q is not hex: %w", args[0], err)
		}
		hs, err = ds.FindUpgradeHistoryByDevice(ctx, id)
	}
	if err != nil {
		return err
	}

	for _, h := range hs {
		fmt.Printf("%s  %s\n", h.Created.Format(time.RFC3339), h)
	}
	return nil
}
