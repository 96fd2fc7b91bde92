package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bornholm/remotedav"
	"github.com/bornholm/remotedav/authz"
	"github.com/bornholm/remotedav/deadprops"
	"github.com/bornholm/remotedav/handler"
	"github.com/bornholm/remotedav/lock"
	"github.com/bornholm/remotedav/middleware/cache"
	"github.com/bornholm/remotedav/middleware/logger"
	"github.com/bornholm/remotedav/middleware/retry"
	"github.com/bornholm/remotedav/store"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	sloghttp "github.com/samber/slog-http"

	_ "github.com/bornholm/remotedav/store/all"
)

var (
	address     string = ":7860"
	configFile  string = "config.json"
	rawLogLevel string = slog.LevelInfo.String()
)

func init() {
	flag.StringVar(&address, "address", address, "server listening address")
	flag.StringVar(&configFile, "config", configFile, "configuration file")
	flag.StringVar(&rawLogLevel, "log-level", rawLogLevel, "log level")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	flag.Parse()

	if err := run(ctx); err != nil {
		slog.ErrorContext(ctx, err.Error(), slog.Any("error", errors.WithStack(err)))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(rawLogLevel)); err != nil {
		return errors.Wrap(err, "could not parse log level")
	}

	slog.SetLogLoggerLevel(logLevel)

	conf, err := loadConfig(ctx)
	if err != nil {
		return errors.WithStack(err)
	}

	slog.InfoContext(ctx, "creating store", slog.String("type", conf.Store.Type))

	var storeOptions any
	if conf.Store.Options != nil {
		storeOptions = conf.Store.Options.Value
	}

	backend, err := store.New(store.Type(conf.Store.Type), storeOptions)
	if err != nil {
		return errors.Wrap(err, "could not create store")
	}

	middlewares := []remotedav.Middleware{
		logger.Middleware(slog.Default()),
	}

	if conf.Cache.Enabled {
		slog.InfoContext(ctx, "enabling metadata cache", slog.Duration("ttl", conf.Cache.TTL.Duration()))

		memoryCache, err := cache.NewMemoryCache(conf.Cache.TTL.Duration(), conf.Cache.MaxEntries)
		if err != nil {
			return errors.Wrap(err, "could not create metadata cache")
		}

		defer memoryCache.Close()

		middlewares = append(middlewares, cache.Middleware(memoryCache))
	}

	var registry *prometheus.Registry
	if conf.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	lockStore, err := newLockStore(conf.Locks)
	if err != nil {
		return errors.WithStack(err)
	}

	if closer, ok := lockStore.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				slog.ErrorContext(ctx, "could not close lock store", slog.Any("error", errors.WithStack(err)))
			}
		}()
	}

	lockOptions := []lock.OptionFunc{
		lock.WithMaxTimeout(conf.Locks.MaxTimeout.Duration()),
		lock.WithLogger(slog.Default()),
	}

	handlerOptions := []handler.OptionFunc{
		handler.WithMiddlewares(middlewares...),
		handler.WithDeadProps(deadprops.NewMemStore()),
		handler.WithRetry(
			retry.WithMaxRetries(conf.Retry.MaxRetries),
			retry.WithInterval(conf.Retry.InitialInterval.Duration(), conf.Retry.MaxInterval.Duration()),
		),
	}

	if registry != nil {
		lockOptions = append(lockOptions, lock.WithMetrics(lock.NewMetrics(registry)))
		handlerOptions = append(handlerOptions, handler.WithMetrics(handler.NewMetrics(registry)))
	}

	locks := lock.NewManager(lockStore, lockOptions...)

	if interval := conf.Locks.SweepInterval.Duration(); interval > 0 {
		go locks.Run(ctx, interval)
	}

	handlerOptions = append(handlerOptions, handler.WithLockManager(locks))

	authEnabled := conf.Auth.Enabled && len(conf.Auth.Users) > 0

	var users map[string]authz.User
	if authEnabled {
		users, err = newUsers(conf.Auth)
		if err != nil {
			return errors.Wrap(err, "could not create users")
		}

		handlerOptions = append(handlerOptions, handler.WithAuthorizer(authz.NewRuleAuthorizer(slog.Default())))
	}

	var h http.Handler = handler.New(backend, handlerOptions...)

	if authEnabled {
		slog.InfoContext(ctx, "enabling basic auth", slog.Int("total_users", len(conf.Auth.Users)))
		h = basicAuth(h, conf.Auth.Realm, conf.Auth.Users, users)
	}

	slogMiddleware := sloghttp.New(slog.Default())
	h = slogMiddleware(h)

	if registry != nil {
		go serveMetrics(ctx, conf.Metrics.Address, registry)
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrapf(err, "could not listen on '%s'", address)
	}

	if conf.MDNS.Enabled {
		port := listener.Addr().(*net.TCPAddr).Port

		realm := ""
		if conf.Auth.Enabled {
			realm = conf.Auth.Realm
		}

		if err := announce(ctx, conf.MDNS.Instance, port, realm); err != nil {
			slog.ErrorContext(ctx, "could not announce service", slog.Any("error", errors.WithStack(err)))
		}
	}

	server := &http.Server{
		Handler: h,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		slog.InfoContext(shutdownCtx, "shutting down")

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "could not shutdown server", slog.Any("error", errors.WithStack(err)))
		}
	}()

	slog.InfoContext(ctx, "listening", slog.String("address", listener.Addr().String()))

	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.WithStack(err)
	}

	return nil
}

func loadConfig(ctx context.Context) (*config, error) {
	conf := defaultConfig()

	rawConfig, err := os.ReadFile(configFile)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "could not read configuration file")
	}

	if rawConfig != nil {
		if err := json.Unmarshal(rawConfig, &conf); err != nil {
			return nil, errors.Wrap(err, "could not parse configuration file")
		}
	}

	if err := env.ParseWithOptions(&conf, env.Options{Prefix: "REMOTEDAV_"}); err != nil {
		return nil, errors.Wrap(err, "could not parse environment variables")
	}

	validate := validator.New()
	if err := validate.StructCtx(ctx, &conf); err != nil {
		return nil, errors.Wrap(err, "could not validate config")
	}

	return &conf, nil
}

func newLockStore(conf locksConfig) (lock.Store, error) {
	switch conf.Store {
	case "badger":
		slog.Info("opening persistent lock store", slog.String("path", conf.Path))

		lockStore, err := lock.OpenBadgerStore(conf.Path)
		if err != nil {
			return nil, errors.Wrap(err, "could not open lock store")
		}

		return lockStore, nil

	default:
		return lock.NewMemoryStore(), nil
	}
}

func serveMetrics(ctx context.Context, address string, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:    address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	slog.InfoContext(ctx, "serving metrics", slog.String("address", address))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.ErrorContext(ctx, "could not serve metrics", slog.Any("error", errors.WithStack(err)))
	}
}
