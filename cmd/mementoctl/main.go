// mementoctl 检查、复制和备份持久化的管理平面状态
//
// 三个子命令共享 --config、--base-dir 与 --log-level：
//
//	mementoctl manifest [--location spec] [--container c] [--json]
//	mementoctl copy --to spec [--to-container c] [--from spec] [--from-container c]
//	mementoctl backup [--mode promotion|demotion|custom] [--source auto|local|remote]
//
// 位置规格为 localhost、file:<dir>、memory[:name]、sqlite:<dsn>、redis://...、nats://...
// 或配置文件中的命名位置。
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"rebind/config"
	"rebind/errors"
	"rebind/ha"
	"rebind/logging"
	"rebind/memento"
	"rebind/mgmt"
	"rebind/persistence"
	"rebind/persister"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = []command{
	{"manifest", "list the objects held in a store", runManifest},
	{"copy", "copy persisted state between stores", runCopy},
	{"backup", "write a timestamped backup of the persisted state", runBackup},
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(stderr)
		return nil
	}
	for _, c := range commands {
		if c.name == args[0] {
			return c.run(ctx, &env{stdout: stdout, stderr: stderr}, args[1:])
		}
	}
	printUsage(stderr)
	return errors.Newf(errors.ErrCodeInvalidInput, "unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "mementoctl inspects, copies and backs up persisted management-plane state.\n\nUsage:\n  mementoctl <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintf(w, "\nRun \"mementoctl <command> --help\" for the flags of a command.\n")
}

// env 子命令共享的参数与依赖
type env struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	baseDir    string
	logLevel   string

	cfg *config.Config
}

func (e *env) flagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("mementoctl "+name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.StringVar(&e.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&e.baseDir, "base-dir", "", "node base directory (overrides node.base_dir)")
	fs.StringVar(&e.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	return fs
}

// parse 解析参数并加载配置；请求帮助时返回 done=true
func (e *env) parse(fs *pflag.FlagSet, args []string) (done bool, err error) {
	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return true, nil
		}
		return false, errors.WrapError(err, errors.ErrCodeInvalidInput, "parse flags")
	}
	if rest := fs.Args(); len(rest) > 0 {
		return false, errors.Newf(errors.ErrCodeInvalidInput, "unexpected argument: %s", rest[0])
	}

	logging.SetLogger(logging.NewStdLogger("mementoctl ").WithLevel(logging.ParseLevel(e.logLevel)))
	cfg := config.Default()
	if e.configPath != "" {
		if cfg, err = config.LoadFile(e.configPath); err != nil {
			return false, err
		}
	}
	if e.baseDir != "" {
		cfg.Node.BaseDir = e.baseDir
	}
	e.cfg = cfg
	return false, nil
}

func (e *env) newManagement() (*mgmt.LocalManagementContext, error) {
	opts, err := e.cfg.LocalOptions(e.cfg.Paths())
	if err != nil {
		return nil, err
	}
	return mgmt.NewLocal(opts), nil
}

// loadedState 从存储读取的状态
type loadedState struct {
	store    string
	raw      *memento.RawSnapshot
	manifest *memento.Manifest
	record   *ha.SyncRecord
}

// loadState 读取 spec/container 的原始快照与同步记录，并交给管理上下文作为 REMOTE 来源
func (e *env) loadState(ctx context.Context, m *mgmt.LocalManagementContext, spec, container string) (*loadedState, error) {
	store, err := persistence.NewPersistenceObjectStore(ctx, m, spec, container, ha.PersistAuto, ha.HADisabled)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	opts, err := e.cfg.PersisterOptions()
	if err != nil {
		return nil, err
	}
	opts.DeferRawLoad = false
	p := persister.NewStorePersister(store, opts)
	defer func() { _ = p.Stop(ctx, false) }()

	handler := memento.NewCollectingRebindExceptionHandler(memento.Continue, nil)
	raw, err := m.RebindManager().RetrieveRawSnapshot(ctx, p, handler)
	if err != nil {
		return nil, err
	}
	manifest, err := p.LoadMementoManifest(ctx, raw, handler)
	if err != nil {
		return nil, err
	}
	rec, err := persister.NewSyncRecordPersister(store).Load(ctx)
	if err != nil {
		return nil, err
	}
	if lm, ok := m.HAManager().(*ha.LocalManager); ok && !rec.IsEmpty() {
		lm.SetLoadedSyncRecord(rec)
	}
	return &loadedState{store: store.SummaryName(), raw: raw, manifest: manifest, record: rec}, nil
}
