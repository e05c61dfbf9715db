// =============================================================================
// Roundtable 主入口
// =============================================================================
// 多人格对话的命令行前端
//
// 使用方法:
//
//	roundtable                               # 进入交互式对话
//	roundtable chat --config config.yaml     # 指定配置文件
//	roundtable chat -p vanessa -p nicole     # 只让部分人格参与
//	roundtable threads                       # 列出已保存的线程
//	roundtable threads show <id>             # 打印线程内容
//	roundtable threads delete <id>           # 删除线程
//	roundtable summarize <id>                # 让主持人总结线程
//	roundtable personalities                 # 列出人格
//	roundtable version                       # 显示版本信息
// =============================================================================

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// rootOptions 是所有子命令共享的全局参数
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	chat := newChatCmd(opts)

	root := &cobra.Command{
		Use:   "roundtable",
		Short: "Roundtable - a conversation between you and several AI personalities",
		Long: `Roundtable hosts a group conversation between you and a configurable cast of
AI personalities. Every message you send starts a round in which the selected
participants reply in turn; address one of them by name to hear from them alone.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          chat.RunE,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to config file (YAML)")
	root.Flags().AddFlagSet(chat.Flags())

	root.AddCommand(
		chat,
		newThreadsCmd(opts),
		newSummarizeCmd(opts),
		newPersonalitiesCmd(opts),
		newVersionCmd(),
	)
	return root
}

// =============================================================================
// 💬 chat 命令
// =============================================================================

func newChatCmd(opts *rootOptions) *cobra.Command {
	var participants []string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &printer{out: cmd.OutOrStdout()}
			return withApp(cmd, opts, out, func(ctx context.Context, a *app) error {
				sess := a.orch.NewSession()
				if len(participants) == 0 {
					participants = a.mainIDs()
				}
				sess.Select(participants...)
				out.printf("Roundtable %s. Type /help for commands.\n", Version)
				loop := &chatLoop{app: a, sess: sess, out: out}
				return loop.run(ctx, cmd.InOrStdin())
			})
		},
	}
	cmd.Flags().StringSliceVarP(&participants, "participants", "p", nil, "Participant ids taking part in rounds (default: everyone)")
	return cmd
}

// =============================================================================
// 🗂️ threads 命令
// =============================================================================

func newThreadsCmd(opts *rootOptions) *cobra.Command {
	list := func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, opts, nil, func(ctx context.Context, a *app) error {
			infos, err := a.orch.ListThreads(ctx)
			if err != nil {
				return err
			}
			printThreads(cmd.OutOrStdout(), infos)
			return nil
		})
	}

	cmd := &cobra.Command{
		Use:   "threads",
		Short: "Manage saved conversation threads",
		Args:  cobra.NoArgs,
		RunE:  list,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List saved threads, newest first",
			Args:  cobra.NoArgs,
			RunE:  list,
		},
		&cobra.Command{
			Use:   "show <id>",
			Short: "Print the messages of a thread",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, nil, func(ctx context.Context, a *app) error {
					sess := a.orch.NewSession()
					thread, err := a.orch.SwitchThread(ctx, sess, args[0])
					if err != nil {
						return err
					}
					w := cmd.OutOrStdout()
					fmt.Fprintf(w, "Topic: %s\n", thread.Topic)
					for _, msg := range thread.Messages {
						if msg.IsDivider {
							fmt.Fprintf(w, "---------- %s\n", msg.Body)
							continue
						}
						fmt.Fprintf(w, "%s: %s\n", msg.Sender, msg.Body)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a thread",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(cmd, opts, nil, func(ctx context.Context, a *app) error {
					if err := a.orch.DeleteThread(ctx, args[0]); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
					return nil
				})
			},
		},
	)
	return cmd
}

// =============================================================================
// 📝 summarize / personalities / version
// =============================================================================

func newSummarizeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <thread-id>",
		Short: "Ask the moderator to summarize a saved thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, nil, func(ctx context.Context, a *app) error {
				sess := a.orch.NewSession()
				if _, err := a.orch.SwitchThread(ctx, sess, args[0]); err != nil {
					return err
				}
				summary, err := a.orch.Summarize(ctx, sess)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), summary)
				return nil
			})
		},
	}
}

func newPersonalitiesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "personalities",
		Aliases: []string{"who"},
		Short:   "List the configured personalities",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, nil, func(ctx context.Context, a *app) error {
				printPersonalities(cmd.OutOrStdout(), a)
				return nil
			})
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Roundtable %s\n", Version)
			fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
			fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
		},
	}
}

// =============================================================================
// 🔧 公共流程
// =============================================================================

// withApp 加载配置、初始化日志并装配组件，fn 返回后释放资源
func withApp(cmd *cobra.Command, opts *rootOptions, out *printer, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	logger.Debug("starting roundtable",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var listener conversation.Listener
	if out != nil {
		listener = out.listener()
	}
	a, err := newApp(ctx, cfg, logger, listener)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warn("shutdown failed", zap.Error(cerr))
		}
	}()
	return fn(ctx, a)
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stderr"}
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      encoding == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var options []zap.Option
	if cfg.EnableCaller {
		options = append(options, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		options = append(options, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	logger, err := zapConfig.Build(options...)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
