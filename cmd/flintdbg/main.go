// Package main is the flintdbg command-line front end: it connects to a
// Flint debug agent, provisions files and tails the target's console.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/FlintVN/FlintDebug/internal/classfile"
	"github.com/FlintVN/FlintDebug/internal/config"
	"github.com/FlintVN/FlintDebug/internal/debug"
	"github.com/FlintVN/FlintDebug/internal/transport"
	"github.com/FlintVN/FlintDebug/internal/watch"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

const connectTimeout = 5 * time.Second

type options struct {
	configPath string
	address    string
	mainClass  string
	install    string
	watchFiles bool
	verbose    bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	log, err := newLogger(opts.verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	session := debug.NewSession(
		debug.NewClient(transport.NewTCP(cfg.Address, log), log),
		noClassFiles{},
		log,
	)
	if err := session.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: connect %s: %v\n", cfg.Address, err)
		return 1
	}

	closed := make(chan struct{})
	session.OnStdout(func(text string) {
		fmt.Print(text)
	})
	session.OnStop(func(reason debug.StopReason) {
		if reason != debug.StopReasonException {
			log.Info("target stopped")
			return
		}
		if info, err := session.ReadExceptionInfo(); err == nil {
			fmt.Fprintf(os.Stderr, "Uncaught %s: %s\n", info.TypeName, info.Message)
		} else {
			log.Warn("exception info unavailable", zap.Error(err))
		}
	})
	session.OnError(func(err error) {
		log.Warn("transport error", zap.Error(err))
	})
	session.OnClose(func() {
		close(closed)
	})

	var watcher *watch.Watcher
	if len(cfg.Install) > 0 {
		if err := installAll(session, cfg.Install, log); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			session.Close()
			return 1
		}
		if cfg.Watch {
			watcher, err = newInstallWatcher(session, cfg.Install, log)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: watch: %v\n", err)
				session.Close()
				return 1
			}
		}
	}

	if cfg.StopOnException {
		if err := session.SetExceptionBreakpoints(true); err != nil {
			log.Warn("exception mode not set", zap.Error(err))
		}
	}

	if cfg.MainClass != "" {
		if err := session.Restart(cfg.MainClass); err != nil {
			fmt.Fprintf(os.Stderr, "Error: restart %s: %v\n", cfg.MainClass, err)
			session.Close()
			return 1
		}
	}
	if err := session.Run(); err != nil {
		log.Warn("run failed", zap.Error(err))
	}
	session.StartPolling()

	log.Info("debugging", zap.String("address", cfg.Address),
		zap.String("version", version), zap.String("commit", commit))

	// Wait for the link to drop or the user to interrupt.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-signals:
		log.Info("interrupted")
	case <-closed:
		log.Info("connection closed")
	}

	var errs error
	if watcher != nil {
		errs = multierr.Append(errs, watcher.Close())
	}
	errs = multierr.Append(errs, session.Close())
	if errs != nil {
		log.Warn("shutdown", zap.Error(errs))
	}
	return 0
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "launch configuration file (JSON)")
	flag.StringVar(&opts.address, "addr", "", "agent TCP address (overrides config)")
	flag.StringVar(&opts.mainClass, "main", "", "main class to restart with (overrides config)")
	flag.StringVar(&opts.install, "install", "", "comma-separated files to install before running")
	flag.BoolVar(&opts.watchFiles, "watch", false, "reinstall files when they change")
	flag.BoolVar(&opts.verbose, "v", false, "verbose logging")
	flag.Parse()
	return opts
}

func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if verbose {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.OutputPaths = []string{"stderr"}
	return zcfg.Build()
}

// loadConfig merges the config file (when given) with flag overrides.
func loadConfig(opts options) (*config.LaunchConfig, error) {
	cfg := &config.LaunchConfig{Address: config.DefaultAddress}
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.address != "" {
		cfg.Address = opts.address
	}
	if opts.mainClass != "" {
		cfg.MainClass = opts.mainClass
	}
	if opts.install != "" {
		cfg.Install = strings.Split(opts.install, ",")
	}
	if opts.watchFiles {
		cfg.Watch = true
	}
	return cfg, nil
}

func installAll(session *debug.Session, files []string, log *zap.Logger) error {
	for _, file := range files {
		if err := installOne(session, file, log); err != nil {
			return err
		}
	}
	return nil
}

func installOne(session *debug.Session, file string, log *zap.Logger) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	return session.InstallFile(deviceName(file), data, func(offset, total uint32) {
		log.Debug("install progress", zap.String("file", file),
			zap.Uint32("offset", offset), zap.Uint32("total", total))
	})
}

// deviceName strips directories; the agent stores files by bare name.
func deviceName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func newInstallWatcher(session *debug.Session, files []string, log *zap.Logger) (*watch.Watcher, error) {
	watcher, err := watch.New(func(path string) {
		log.Info("reinstalling changed file", zap.String("path", path))
		if err := installOne(session, path, log); err != nil {
			log.Warn("reinstall failed", zap.String("path", path), zap.Error(err))
		}
	}, log)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if err := watcher.Add(file); err != nil {
			watcher.Close()
			return nil, err
		}
	}
	return watcher, nil
}

// noClassFiles is the loader used when flintdbg runs without class files
// on hand; breakpoint and variable operations need a real loader.
type noClassFiles struct{}

func (noClassFiles) Load(className string) (classfile.Loader, error) {
	return nil, fmt.Errorf("no class files loaded for %s", className)
}

func (noClassFiles) LineInfoFromLine(line uint32, sourcePath string) (*classfile.LineInfo, error) {
	return nil, fmt.Errorf("no class files loaded for %s:%d", sourcePath, line)
}

func (noClassFiles) LineInfoFromPc(pc uint32, className, methodName, descriptor string) (*classfile.LineInfo, error) {
	return nil, fmt.Errorf("no class files loaded for %s.%s", className, methodName)
}
