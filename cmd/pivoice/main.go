package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/logger"
	"github.com/iabetor/pivoice/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/pivoice.yaml", "配置文件路径")
	envPath := flag.String("env", ".env", "环境变量文件路径")
	flag.Parse()

	if err := config.LoadDotEnv(*envPath); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，取消正在进行的录音或请求
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	args := flag.Args()
	if len(args) == 0 {
		err = runInteractive(ctx, cfg)
	} else {
		err = runCommand(ctx, cfg, args)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		logger.Sync()
		os.Exit(1)
	}
}

// loadConfig 读取配置文件；默认路径不存在时使用内置默认值。
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == filepath.Join("configs", "pivoice.yaml") {
		return config.Default(), nil
	}
	return config.Load(path)
}

func runCommand(ctx context.Context, cfg *config.Config, args []string) error {
	switch args[0] {
	case "enroll":
		if len(args) < 2 {
			return errors.New("用法: pivoice enroll <用户名>")
		}
		return withPipeline(cfg, func(p *pipeline.Pipeline) error {
			return addUser(ctx, p, args[1])
		})
	case "enroll-file":
		if len(args) < 3 {
			return errors.New("用法: pivoice enroll-file <用户名> <音频文件>...")
		}
		return cmdEnrollFiles(ctx, cfg, args[1], args[2:])
	case "delete":
		if len(args) < 2 {
			return errors.New("用法: pivoice delete <用户名>")
		}
		return cmdDelete(cfg, args[1])
	case "list":
		return cmdList(cfg)
	case "verify":
		return withPipeline(cfg, func(p *pipeline.Pipeline) error {
			return giveCommand(ctx, p)
		})
	case "verify-file":
		if len(args) < 2 {
			return errors.New("用法: pivoice verify-file <音频文件>")
		}
		return cmdVerifyFile(ctx, cfg, args[1])
	case "history":
		return cmdHistory(cfg, 20)
	case "help", "-h":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("未知命令: %s", args[0])
	}
}

func withPipeline(cfg *config.Config, fn func(p *pipeline.Pipeline) error) error {
	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("创建流水线失败: %w", err)
	}
	defer p.Close()
	return fn(p)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "PiVoice 声纹验证语音控制")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "用法: pivoice [-config <path>] [-env <path>] [command] [args]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "不带命令时进入交互菜单。")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "命令:")
	fmt.Fprintln(os.Stderr, "  enroll <用户名>                 用麦克风录制多轮样本注册用户")
	fmt.Fprintln(os.Stderr, "  enroll-file <用户名> <文件>...   用 WAV/MP3 文件注册用户")
	fmt.Fprintln(os.Stderr, "  delete <用户名>                 删除用户的全部样本")
	fmt.Fprintln(os.Stderr, "  list                            列出已注册用户")
	fmt.Fprintln(os.Stderr, "  verify                          录一条语音指令并执行")
	fmt.Fprintln(os.Stderr, "  verify-file <文件>               对音频文件做声纹验证和语音识别")
	fmt.Fprintln(os.Stderr, "  history                         查看最近的操作记录")
}
