package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/lumen-assistant/core/internal/assistant/answer"
	"github.com/lumen-assistant/core/internal/assistant/conversation"
	"github.com/lumen-assistant/core/internal/assistant/dispatch"
	"github.com/lumen-assistant/core/internal/assistant/duty"
	"github.com/lumen-assistant/core/internal/assistant/model"
	"github.com/lumen-assistant/core/internal/assistant/repo"
	"github.com/lumen-assistant/core/internal/core"
	logx "github.com/lumen-assistant/core/pkg/logger"
	pkgredis "github.com/lumen-assistant/core/pkg/redis"
)

// AppConfig defines all configurable parameters for the assistant core,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	ConfigRoot  string `envconfig:"CONFIG_ROOT" default:"."`

	// Infrastructure
	Redis pkgredis.Config

	// Duty backends
	Provider model.ProviderConfig
	Duty     model.DutyConfig

	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(envCfg.Environment)})

	rdb, err := envCfg.Redis.New()
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		log.Fatalf("Invalid CONVERSATION_TTL '%s': %v", envCfg.Conversation.TTL, err)
	}

	// ====================================================
	// Wire the dialog core
	configs := conversation.NewFSConfigStore(envCfg.ConfigRoot)
	skillNames, err := configs.SkillNames()
	if err != nil {
		log.Fatalf("Failed to list skills: %v", err)
	}

	var (
		opener    duty.SessionOpener
		completer duty.Completer
	)
	switch model.ParseProviderKind(envCfg.Provider.Kind) {
	case model.ProviderRemote:
		completer, err = duty.NewGeminiProvider(ctx, envCfg.Provider, envCfg.Duty)
		if err != nil {
			log.Fatalf("Failed to initialise remote provider: %v", err)
		}
	default:
		opener = duty.NewLlamaProvider(envCfg.Provider)
	}

	registry := duty.NewRegistry(envCfg.Duty, opener, completer, skillNames)
	if err := registry.WarmUp(ctx); err != nil {
		log.Fatalf("Failed to warm up duty sessions: %v", err)
	}

	state := conversation.NewState(
		envCfg.Conversation.Lang,
		configs,
		conversation.NewDutyEntityExtractor(registry),
		conversation.NewLexiconSentiment(),
	)

	conversationID := uuid.NewString()
	dispatcher, err := dispatch.New(dispatch.Config{
		ConversationID: conversationID,
		Lang:           envCfg.Conversation.Lang,
		State:          state,
		Configs:        configs,
		Registry:       registry,
		Emitter:        answer.NewEmitter(os.Stdout),
		Widgets:        repo.NewRedisWidgetStore(rdb, ttl),
		History:        repo.NewRedisContextRepository(rdb, ttl),
		NLUMaxTurns:    envCfg.Conversation.NLU.MaxTurns,
	})
	if err != nil {
		log.Fatalf("Failed to build dispatcher: %v", err)
	}

	utterances := []string{
		"Hello there!",
		"What can you do?",
		"Thanks, that was great",
	}

	for i, utterance := range utterances {
		fmt.Printf("\nTurn %d: %q\n", i+1, utterance)
		messageID, err := dispatcher.HandleUtterance(ctx, utterance)
		if err != nil {
			log.Fatalf("Failed to handle utterance %d: %v", i+1, err)
		}
		logx.Info().Str("message_id", messageID).Msg("turn completed")
	}
}
