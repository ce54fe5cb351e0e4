// Command munged is the credential daemon: it loads the shared key, binds
// the request socket, and runs the encode/decode pipelines of
// internal/engine behind internal/worker's connection pool. Startup and
// shutdown sequencing is grounded on
// gravwell/v3/ingesters/SimpleRelay/main.go's mainInit/main split and its
// signal-driven, WaitGroup-bounded shutdown.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dun/munge/internal/config"
	"github.com/dun/munge/internal/cryptoprim"
	"github.com/dun/munge/internal/engine"
	"github.com/dun/munge/internal/groupcache"
	"github.com/dun/munge/internal/mlog"
	"github.com/dun/munge/internal/munge"
	"github.com/dun/munge/internal/originresolve"
	"github.com/dun/munge/internal/replay"
	"github.com/dun/munge/internal/subkey"
	"github.com/dun/munge/internal/timersvc"
	"github.com/dun/munge/internal/worker"
	"github.com/google/uuid"
)

const appName = "munged"

var (
	confPath   = flag.String("config-file", "", "Location of munge.conf (defaults built in if absent)")
	foreground = flag.Bool("F", false, "Run in the foreground instead of daemonizing")
	verbose    = flag.Bool("v", false, "Verbose logging to stderr in foreground mode")
	force      = flag.Bool("force", false, "Downgrade fatal startup security checks to warnings")
	ver        = flag.Bool("version", false, "Print version information and exit")

	replayPurgeInterval = 100 * time.Second
)

func main() {
	flag.Parse()
	if *ver {
		fmt.Printf("%s (munge credential daemon)\n", appName)
		os.Exit(0)
	}

	cfg, err := config.Load(*confPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(int(munge.Snafu))
	}
	if *force {
		cfg.Munged.Force = true
	}
	if *foreground {
		cfg.Munged.Foreground = true
	}

	lg, err := bringUpLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: failed to open log: %v\n", appName, err)
		os.Exit(int(munge.Snafu))
	}

	lock, err := config.AcquireLock(cfg.Munged.LockFile)
	if err != nil {
		lg.Fatalf(int(munge.Socket), "cannot acquire lock %s: %v", cfg.Munged.LockFile, err)
		return
	}
	defer lock.Unlock()

	if err := config.WritePidFile(cfg.Munged.PidFile, os.Getpid()); err != nil {
		lg.Warnf("failed to write pid file: %v", err)
	}
	defer os.Remove(cfg.Munged.PidFile)

	keys, err := subkey.Load(cfg.Munged.KeyFile, subkey.LoadOptions{
		Force: cfg.Munged.Force,
		Warn:  func(msg string) { lg.Warnf("key file: %s", msg) },
	})
	if err != nil {
		lg.Fatalf(int(munge.KindOf(err)), "failed to load key file: %v", err)
		return
	}
	defer keys.Zero()

	seed, err := config.ReadSeedFile(cfg.Munged.SeedFile)
	if err != nil {
		lg.Warnf("failed to read seed file: %v", err)
	}
	pool, err := cryptoprim.NewPool(seed)
	if err != nil {
		lg.Fatalf(int(munge.NoMemory), "failed to seed entropy pool: %v", err)
		return
	}

	groups := groupcache.New(groupcache.DefaultGroupFile, cfg.Munged.GroupCheckMtime, lg)
	if err := groups.Refresh(); err != nil {
		lg.Warnf("initial group cache build failed: %v", err)
	}

	eng := &engine.Engine{
		Config:  cfg,
		Subkeys: keys,
		Replay:  replay.New(),
		Groups:  groups,
		Pool:    pool,
		Log:     lg,
	}
	stampOrigin(eng, cfg, lg)

	timers := timersvc.New()
	defer timers.Stop()
	scheduleGroupRefresh(timers, groups, cfg, lg)
	scheduleReplayPurge(timers, eng.Replay, lg)

	if err := os.Remove(cfg.Munged.SocketPath); err != nil && !os.IsNotExist(err) {
		lg.Warnf("failed to remove stale socket: %v", err)
	}
	ln, err := net.Listen("unix", cfg.Munged.SocketPath)
	if err != nil {
		lg.Fatalf(int(munge.Socket), "failed to bind socket %s: %v", cfg.Munged.SocketPath, err)
		return
	}
	if err := os.Chmod(cfg.Munged.SocketPath, 0o666); err != nil {
		lg.Warnf("failed to chmod socket: %v", err)
	}
	defer os.Remove(cfg.Munged.SocketPath)

	disp := &worker.Dispatcher{Engine: eng, Log: lg}
	p := worker.New(ln, cfg.Munged.NumThreads, worker.DefaultTimeout, disp.Handle, lg)

	// instanceID has no protocol meaning; it's stamped into every startup
	// and shutdown log line purely so an operator grepping logs across
	// restarts of the same socket path can tell which daemon process
	// logged what.
	instanceID := uuid.New().String()

	runDone := make(chan struct{})
	go func() {
		p.Run()
		close(runDone)
	}()
	lg.Infof("%s ready: instance=%s socket=%s threads=%d", appName, instanceID, cfg.Munged.SocketPath, cfg.Munged.NumThreads)

	waitForSignal(lg, groups)

	lg.Infof("%s instance=%s shutting down", appName, instanceID)
	if err := p.Stop(5 * time.Second); err != nil {
		lg.Errorf("error stopping worker pool: %v", err)
	}
	<-runDone

	if err := config.WriteSeedFile(cfg.Munged.SeedFile, pool.Snapshot()); err != nil {
		lg.Warnf("failed to persist seed file: %v", err)
	}
	lg.Infof("%s exited", appName)
}

func bringUpLogger(cfg *config.Config) (*mlog.Logger, error) {
	if cfg.Munged.Foreground {
		lg := mlog.New(os.Stderr)
		lg.EnableRawMode()
		if *verbose {
			lg.SetLevel(mlog.DEBUG)
		}
		return lg, nil
	}
	lg, err := mlog.NewFile(cfg.Munged.LogFile)
	if err != nil {
		return nil, err
	}
	if cfg.Munged.SyslogLevel != "" {
		if lvl, err := mlog.LevelFromString(cfg.Munged.SyslogLevel); err == nil {
			lg.SetLevel(lvl)
		}
	}
	return lg, nil
}

// stampOrigin resolves the configured origin address, falling back to the
// machine's own hostname and finally to the null address, per spec §4.9.
func stampOrigin(eng *engine.Engine, cfg *config.Config, lg *mlog.Logger) {
	name := cfg.Munged.Origin
	var addr net.IP
	var err error
	if name != "" {
		addr, _, err = originresolve.Resolve(name)
	} else {
		addr, err = originresolve.HostIPv4()
	}
	if err != nil || addr == nil {
		lg.Warnf("failed to resolve origin address, using 0.0.0.0: %v", err)
		eng.SetOrigin([4]byte{})
		return
	}
	var out [4]byte
	copy(out[:], addr.To4())
	eng.SetOrigin(out)
}

func scheduleGroupRefresh(timers *timersvc.Service, groups *groupcache.Cache, cfg *config.Config, lg *mlog.Logger) {
	interval := cfg.Munged.GroupUpdateInterval
	if interval <= 0 {
		return
	}
	d := time.Duration(interval) * time.Second
	var tick func()
	tick = func() {
		if err := groups.Refresh(); err != nil {
			lg.Warnf("group cache refresh failed: %v", err)
		}
		timers.SetRelative(d, tick)
	}
	timers.SetRelative(d, tick)
}

func scheduleReplayPurge(timers *timersvc.Service, store *replay.Store, lg *mlog.Logger) {
	var tick func()
	tick = func() {
		n := store.Purge(time.Now().Unix())
		if n > 0 {
			lg.Debugf("purged %d expired replay entries", n)
		}
		timers.SetRelative(replayPurgeInterval, tick)
	}
	timers.SetRelative(replayPurgeInterval, tick)
}

// waitForSignal blocks until SIGINT/SIGTERM request a clean stop, or
// SIGHUP requests a group-cache refresh and continues waiting. Mirrors
// utils.WaitForQuit's signal set, minus SIGKILL (which cannot be caught)
// and SIGQUIT (left to the default terminate-with-core-dump action).
func waitForSignal(lg *mlog.Logger, groups *groupcache.Cache) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			lg.Infof("SIGHUP received, refreshing group cache")
			if err := groups.Refresh(); err != nil {
				lg.Warnf("group cache refresh failed: %v", err)
			}
			continue
		}
		return
	}
}
