package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/FairVenturesLab/implicit-auth/implicit"
	"github.com/FairVenturesLab/implicit-auth/implicit/browser"
	"github.com/FairVenturesLab/implicit-auth/implicit/storage/keyring"
	implicitredis "github.com/FairVenturesLab/implicit-auth/implicit/storage/redis"
	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type runtimeState struct {
	envPrefix   string
	storageKind string
	redisAddr   string
	service     string
	logLevel    string
	timeout     time.Duration
	writer      io.Writer

	// memory backs --storage=memory; navigator opens non-interactive URLs
	// such as the provider logout.
	memory    *implicit.MemoryStorage
	navigator func(home string) implicit.Navigator

	cfg     *implicit.Config
	logger  hclog.Logger
	storage implicit.Storage
	closers []func() error
}

type runtimeKey struct{}

func newRootCommand(w io.Writer) *cobra.Command {
	return newRoot(&runtimeState{
		writer:    w,
		memory:    implicit.NewMemoryStorage(),
		navigator: systemNavigator,
	})
}

func systemNavigator(home string) implicit.Navigator {
	return browser.SystemNavigator{Home: home}
}

func newRoot(rt *runtimeState) *cobra.Command {
	root := &cobra.Command{
		Use:           "implicit-auth",
		Short:         "OAuth 2.0 implicit flow login from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.load(); err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return rt.close()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&rt.envPrefix, "env-prefix", "", "prefix of the TENANT, CLIENT_ID, ... environment variables")
	flags.StringVar(&rt.storageKind, "storage", "keyring", "session storage: keyring, redis or memory")
	flags.StringVar(&rt.redisAddr, "redis-addr", "localhost:6379", "redis address when --storage=redis")
	flags.StringVar(&rt.service, "keyring-service", keyring.DefaultService, "keychain service when --storage=keyring")
	flags.StringVar(&rt.logLevel, "log-level", "warn", "log level: trace, debug, info, warn or error")
	flags.DurationVar(&rt.timeout, "timeout", 2*time.Minute, "how long to wait for the provider")

	root.AddCommand(
		newLoginCommand(),
		newRenewCommand(),
		newLogoutCommand(),
		newTokenCommand(),
	)
	return root
}

func getRuntime(cmd *cobra.Command) (*runtimeState, error) {
	rt, ok := cmd.Context().Value(runtimeKey{}).(*runtimeState)
	if !ok {
		return nil, fmt.Errorf("runtime not initialized")
	}
	return rt, nil
}

func (rt *runtimeState) load() error {
	rt.logger = hclog.New(&hclog.LoggerOptions{
		Name:   "implicit-auth",
		Level:  hclog.LevelFromString(rt.logLevel),
		Output: os.Stderr,
	})
	cfg, err := implicit.ConfigFromEnv(rt.envPrefix)
	if err != nil {
		return err
	}
	rt.cfg = cfg

	switch rt.storageKind {
	case "keyring":
		rt.storage = keyring.New(rt.service)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: rt.redisAddr})
		rt.closers = append(rt.closers, client.Close)
		s, err := implicitredis.New(client)
		if err != nil {
			return err
		}
		rt.storage = s
	case "memory":
		rt.storage = rt.memory
	default:
		return fmt.Errorf("unknown storage %q", rt.storageKind)
	}
	return nil
}

func (rt *runtimeState) close() error {
	var first error
	for _, c := range rt.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	rt.closers = nil
	return first
}

func (rt *runtimeState) driver(nav implicit.Navigator, opt ...implicit.Option) (*implicit.Driver, error) {
	opts := append([]implicit.Option{implicit.WithLogger(rt.logger.Named("driver"))}, opt...)
	return implicit.NewDriver(rt.cfg, rt.storage, nav, opts...)
}

// logHost is the authContext handed to Driver.Init; it logs token changes.
type logHost struct {
	logger hclog.Logger
}

func (h logHost) ReactiveChange(name string, value interface{}) {
	if name == implicit.ChangeIDToken {
		value = implicit.IDToken(fmt.Sprint(value))
	}
	h.logger.Debug("session changed", "name", name, "value", value)
}
