package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/pnordin/assistant-chat/internal/config"
	"github.com/pnordin/assistant-chat/internal/host"
	"github.com/pnordin/assistant-chat/internal/session"
	"github.com/pnordin/assistant-chat/internal/store"
)

var cli struct {
	Config string `help:"Path to the configuration file." type:"path"`
	Debug  bool   `short:"v" help:"Enable debug logging."`

	Ask struct {
		Question []string `arg:"" help:"Question to ask the selected assistant."`
	} `cmd:"" help:"Ask the selected assistant a question."`
	Assistants struct{} `cmd:"" help:"List the assistants available on the active backend."`
	Change     struct{} `cmd:"" help:"Select a different assistant."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("assistant-chat"),
		kong.Description("Chat with a remote assistant from the terminal."),
	)

	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, kctx.Command(), logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, logger *slog.Logger) error {
	path := cli.Config
	if path == "" {
		path = config.DefaultPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	st, err := store.Open(filepath.Join(cfg.Dir(), "state.db"))
	if err != nil {
		return err
	}
	defer st.Close()

	sess, err := session.New(cfg, st, host.NewTerminal(os.Stdout), logger)
	if err != nil {
		return err
	}

	switch command {
	case "ask <question>":
		reply, err := sess.Handle(ctx, strings.Join(cli.Ask.Question, " "), "")
		if err != nil {
			return err
		}
		if reply.Streamed {
			// The answer already went through the emit sink.
			fmt.Println()
		} else {
			fmt.Println(reply.Content)
		}
		return nil
	case "assistants":
		assistants, err := sess.Assistants(ctx)
		if err != nil {
			return err
		}
		for _, a := range assistants {
			name := a.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Printf("%s\t%s\n", a.ID, name)
		}
		return nil
	case "change":
		reply, err := sess.Handle(ctx, "", session.CommandChange)
		if err != nil {
			return err
		}
		fmt.Println(reply.Content)
		return nil
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}
