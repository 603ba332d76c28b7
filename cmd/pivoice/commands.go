package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/iabetor/pivoice/internal/asr"
	"github.com/iabetor/pivoice/internal/audio"
	"github.com/iabetor/pivoice/internal/command"
	"github.com/iabetor/pivoice/internal/config"
	"github.com/iabetor/pivoice/internal/database"
	"github.com/iabetor/pivoice/internal/pipeline"
	"github.com/iabetor/pivoice/internal/voiceprint"
)

// runInteractive 显示菜单，直到用户选择退出或收到信号。
func runInteractive(ctx context.Context, cfg *config.Config) error {
	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("创建流水线失败: %w", err)
	}
	defer p.Close()

	in := bufio.NewScanner(os.Stdin)
	readLine := func(prompt string) (string, bool) {
		fmt.Print(prompt)
		if !in.Scan() {
			return "", false
		}
		return strings.TrimSpace(in.Text()), true
	}

	for ctx.Err() == nil {
		fmt.Println()
		fmt.Println("1. Add User")
		fmt.Println("2. Delete User")
		fmt.Println("3. Give Command")
		fmt.Println("4. Exit")
		choice, ok := readLine("> ")
		if !ok {
			return nil
		}

		switch choice {
		case "1":
			name, ok := readLine("用户名: ")
			if !ok {
				return nil
			}
			err = addUser(ctx, p, name)
		case "2":
			users := p.Users()
			if len(users) == 0 {
				fmt.Println("还没有注册任何用户")
				continue
			}
			fmt.Println("已注册用户: " + strings.Join(users, ", "))
			name, ok := readLine("要删除的用户名: ")
			if !ok {
				return nil
			}
			err = p.DeleteUser(name)
			if err == nil {
				fmt.Printf("用户 %s 已删除\n", name)
			}
		case "3":
			err = giveCommand(ctx, p)
		case "4", "q", "exit":
			return nil
		default:
			fmt.Println("请输入 1~4")
			continue
		}

		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Printf("操作失败: %v\n", err)
		}
	}
	return ctx.Err()
}

func addUser(ctx context.Context, p *pipeline.Pipeline, name string) error {
	keys, err := p.AddUser(ctx, name, func(round, total int) {
		fmt.Printf("第 %d/%d 轮：请说话...\n", round, total)
	})
	if err != nil {
		return fmt.Errorf("注册失败（已完成 %d 轮）: %w", len(keys), err)
	}
	fmt.Printf("用户 %s 注册成功，共 %d 个样本\n", name, len(keys))
	return nil
}

func giveCommand(ctx context.Context, p *pipeline.Pipeline) error {
	fmt.Println("请说出指令...")
	out, err := p.GiveCommand(ctx)
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

func printOutcome(out *pipeline.Outcome) {
	v := out.Verification
	if v.Matched {
		fmt.Printf("声纹: %s (相似度 %.2f%%)\n", v.User, v.Similarity)
	} else {
		fmt.Printf("声纹: 未通过 (相似度 %.2f%%)\n", v.Similarity)
	}
	if out.TranscriptErr != nil {
		fmt.Printf("识别: %v\n", out.TranscriptErr)
	} else {
		fmt.Printf("识别: %q\n", out.Transcript)
	}
	if out.Command != nil {
		fmt.Printf("指令: %s -> %s\n", out.Command.Phrase, out.Command.URL)
	}
	fmt.Printf("结果: %s\n", out.Status())
}

func cmdEnrollFiles(ctx context.Context, cfg *config.Config, name string, files []string) error {
	// 文件数即注册轮数
	cfg.Voiceprint.Rounds = len(files)
	mgr, err := voiceprint.NewManager(cfg)
	if err != nil {
		return err
	}
	keys, err := mgr.Enroll(ctx, name, audio.NewFileSource(files...), nil)
	if err != nil {
		return fmt.Errorf("注册失败（已完成 %d 轮）: %w", len(keys), err)
	}
	fmt.Printf("用户 %s 注册成功: %s\n", name, strings.Join(keys, ", "))
	return nil
}

func cmdDelete(cfg *config.Config, name string) error {
	mgr, err := voiceprint.NewManager(cfg)
	if err != nil {
		return err
	}
	if err := mgr.DeleteUser(name); err != nil {
		return err
	}
	fmt.Printf("用户 %s 已删除\n", name)
	return nil
}

func cmdList(cfg *config.Config) error {
	mgr, err := voiceprint.NewManager(cfg)
	if err != nil {
		return err
	}
	users := mgr.ListUsers()
	if len(users) == 0 {
		fmt.Println("还没有注册任何用户")
		return nil
	}
	fmt.Printf("已注册 %d 个用户（%d 个样本）:\n", len(users), mgr.Store().Len())
	for _, u := range users {
		fmt.Println("  " + u)
	}
	return nil
}

// cmdVerifyFile 对音频文件做声纹验证和语音识别，只打印结果，不发送指令。
func cmdVerifyFile(ctx context.Context, cfg *config.Config, path string) error {
	buf, err := audio.LoadFile(path)
	if err != nil {
		return err
	}
	mgr, err := voiceprint.NewManager(cfg)
	if err != nil {
		return err
	}
	transcriber, err := asr.New(cfg.ASR)
	if err != nil {
		return err
	}
	defer transcriber.Close()

	out, err := pipeline.Analyze(ctx, buf, mgr, transcriber, command.FromConfig(cfg.Commands))
	if err != nil {
		return err
	}
	printOutcome(out)
	return nil
}

func cmdHistory(cfg *config.Config, limit int) error {
	db, err := database.Open(filepath.Join(cfg.DataDir, "pivoice.db"))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return err
	}

	attempts, err := db.RecentAttempts(limit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Println("没有操作记录")
		return nil
	}
	printAttempts(os.Stdout, attempts)
	return nil
}

func printAttempts(w io.Writer, attempts []database.Attempt) {
	for _, a := range attempts {
		fmt.Fprintf(w, "%s  %-7s  %-10s  %6.2f  %-20q  %s\n",
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"), a.Kind, a.UserKey, a.Similarity, a.Command, a.Outcome)
	}
}
