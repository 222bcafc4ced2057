package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/LubyRuffy/shopchat/chatclient"
	"github.com/LubyRuffy/shopchat/config"
	"github.com/LubyRuffy/shopchat/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const prompt = "> "

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg, err := config.LoadClient(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if _, err := logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "invalid logging configuration: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	session := chatclient.NewSession(chatclient.NewClient(cfg.ServerURL, nil))
	fmt.Fprintf(os.Stdout, "shopchat @ %s (/reset 清空历史, /exit 退出)\n", cfg.ServerURL)
	if err := runREPL(ctx, os.Stdin, os.Stdout, session, cfg.Timeout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("chat failed")
	}
}

// runREPL 逐行读取用户输入，流式打印助手回复。
func runREPL(ctx context.Context, in io.Reader, out io.Writer, session *chatclient.Session, timeout time.Duration) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			*session = *chatclient.NewSession(session.Client())
			fmt.Fprintln(out, "history cleared")
			continue
		}

		if err := ask(ctx, out, session, line, timeout); err != nil {
			return err
		}
	}
}

func ask(ctx context.Context, out io.Writer, session *chatclient.Session, line string, timeout time.Duration) error {
	askCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		askCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	streamed := false
	msg, err := session.Ask(askCtx, line, func(delta string) {
		streamed = true
		fmt.Fprint(out, delta)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		log.Warn().Err(err).Msg("chat request failed")
	}
	if msg.Failed {
		if streamed {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, msg.Content)
		return nil
	}
	fmt.Fprintln(out)
	return nil
}
