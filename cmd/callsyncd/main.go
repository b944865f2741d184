package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/hairocraft/callsync/internal/agent"
	"github.com/hairocraft/callsync/internal/config"
	"github.com/hairocraft/callsync/pkg/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	command := NewAgentCommand()
	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

type agentCmd struct {
	config *config.Config
}

func NewAgentCommand() *agentCmd {
	logger := log.InitLog(zap.NewAtomicLevelAt(zapcore.InfoLevel))
	defer func() { _ = logger.Sync() }()

	undo := zap.ReplaceGlobals(logger)
	defer undo()

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage of %s:\n", os.Args[0])
		fmt.Println("This program starts the call sync agent. Configuration comes from CALLSYNC_* environment variables.")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		zap.S().Fatalf("Error reading configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		zap.S().Fatalf("Error validating configuration: %v", err)
	}

	return &agentCmd{config: cfg}
}

func (a *agentCmd) Execute() error {
	logLvl, err := zap.ParseAtomicLevel(a.config.Service.LogLevel)
	if err != nil {
		logLvl = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger := log.InitLog(logLvl)
	defer func() { _ = logger.Sync() }()

	undo := zap.ReplaceGlobals(logger)
	defer undo()

	agentInstance := agent.New(a.config)
	if err := agentInstance.Run(context.Background()); err != nil {
		zap.S().Fatalf("running sync agent: %v", err)
	}
	return nil
}
