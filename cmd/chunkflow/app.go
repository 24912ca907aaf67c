package main

import (
	"context"
	"io"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/lguimbarda/chunkflow/flow"
	"github.com/lguimbarda/chunkflow/flow/codec"
	"github.com/lguimbarda/chunkflow/flow/core"
	"github.com/lguimbarda/chunkflow/flow/netflow"
	"github.com/lguimbarda/chunkflow/flow/observe"
	"github.com/lguimbarda/chunkflow/flow/parallel"
	"github.com/lguimbarda/chunkflow/flow/pipeline"
	"github.com/lguimbarda/chunkflow/internal/config"
	"github.com/lguimbarda/chunkflow/internal/logger"
)

// app holds what every subcommand shares: configuration, logging and the
// standard streams.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configFile string
	envFile    string
	logLevel   string
	workers    int

	cfg  *config.Config
	log  *logger.Logger
	inst *observe.Instruments
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "chunkflow",
		Short: "Chunked streaming pipelines with back-pressure",
		Long: `chunkflow moves data through source, transform and sink stages one chunk
at a time. A slow sink holds back its producers, and the first failure in
any stage halts the whole pipeline.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.setup() },
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetIn(a.stdin)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().StringVar(&a.configFile, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", "", ".env file loaded before the environment is read")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level")
	root.PersistentFlags().IntVar(&a.workers, "workers", 0, "concurrent scrypt derivations (default pipeline.workers)")

	root.AddCommand(
		newRunCmd(a),
		newServeCmd(a),
		newSendCmd(a),
		newWatchCmd(a),
		newSpawnCmd(a),
		newLsCmd(a),
		newStoreCmd(a),
	)
	return root
}

// execute runs the command line and then closes the log output, also when
// the command failed. With no args the process arguments are used.
func (a *app) execute(ctx context.Context, args ...string) error {
	root := newRootCmd(a)
	if args != nil {
		root.SetArgs(args)
	}
	err := root.ExecuteContext(ctx)
	if a.log != nil {
		err = errors.CombineErrors(err, a.log.Close())
	}
	return err
}

func (a *app) setup() error {
	var opts []config.LoaderOption
	if a.configFile != "" {
		opts = append(opts, config.WithConfigFile(a.configFile))
	}
	if a.envFile != "" {
		opts = append(opts, config.WithEnvFile(a.envFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	if a.logLevel != "" || a.workers != 0 {
		cfg.Log.Level = lo.Ternary(a.logLevel != "", a.logLevel, cfg.Log.Level)
		cfg.Pipeline.Workers = lo.Ternary(a.workers != 0, a.workers, cfg.Pipeline.Workers)
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	log, err := logger.New(cfg.Log, "chunkflow")
	if err != nil {
		return err
	}
	inst, err := observe.NewInstruments(otel.GetMeterProvider().Meter("github.com/lguimbarda/chunkflow"))
	if err != nil {
		return err
	}
	a.cfg, a.log, a.inst = cfg, log, inst
	return nil
}

// pipelineOptions are the options every pipeline run by the command shares.
func (a *app) pipelineOptions(ctx context.Context, component string) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithBufferSize(a.cfg.Pipeline.BufferSize),
		pipeline.WithLogger(a.log.WithComponent(component).Zerolog()),
		pipeline.WithObserver(a.inst.Transitions(ctx)),
	}
}

// observed attaches logging and metric hooks for byte streams under stage.
func (a *app) observed(ctx context.Context, stage string) context.Context {
	ctx = observe.WithLogging[[]byte](ctx, a.log.Zerolog(), stage)
	return observe.WithOtelMetrics(ctx, a.inst, stage, observe.ByteLen)
}

type byteTransform = core.Transformer[[]byte, []byte]

// transforms are the byte transforms selectable by name.
func (a *app) transforms() map[string]func() byteTransform {
	return map[string]func() byteTransform{
		"echo":   netflow.Echo,
		"upper":  netflow.Upper,
		"lower":  func() byteTransform { return codec.LowercaseBytes() },
		"gzip":   func() byteTransform { return codec.Gzip(gzip.DefaultCompression) },
		"gunzip": func() byteTransform { return codec.Gunzip() },
		"hex": func() byteTransform {
			return flow.Through(codec.HexEncode(), codec.ToBytes())
		},
		"unhex": func() byteTransform {
			return flow.Through(codec.ToString(), codec.HexDecode())
		},
		"scrypt": func() byteTransform {
			salt := []byte(a.cfg.Crypto.Salt)
			if a.cfg.Pipeline.Workers > 1 {
				return parallel.Ordered(a.cfg.Pipeline.Workers, netflow.ScryptKey(salt, a.cfg.Crypto.KeyLen))
			}
			return netflow.Scrypt(salt, a.cfg.Crypto.KeyLen)
		},
	}
}

func (a *app) transform(name string) (byteTransform, error) {
	ts := a.transforms()
	build, ok := ts[name]
	if !ok {
		names := lo.Keys(ts)
		slices.Sort(names)
		return nil, errors.WithHint(
			core.WithKind(errors.Newf("unknown transform %q", name), core.KindInvalidInput),
			"use one of: "+strings.Join(names, ", "),
		)
	}
	return build(), nil
}
