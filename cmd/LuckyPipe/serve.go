package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/BTreeMap/LuckyPipe/internal/api"
	"github.com/BTreeMap/LuckyPipe/internal/flow"
	"github.com/BTreeMap/LuckyPipe/internal/genai"
	"github.com/BTreeMap/LuckyPipe/internal/lockfile"
	"github.com/BTreeMap/LuckyPipe/internal/messaging"
	"github.com/BTreeMap/LuckyPipe/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat API server",
		RunE:  a.runServe,
	}
	cmd.Flags().String("api-addr", "", "API server address (overrides $API_ADDR)")
	cmd.Flags().String("openai-api-key", "", "OpenAI API key for intent classification (overrides $OPENAI_API_KEY)")
	cmd.Flags().String("openai-model", "", "OpenAI model for intent classification (overrides $OPENAI_MODEL)")
	cmd.Flags().String("redis-addr", "", "Redis address for shared receipt numbering (overrides $REDIS_ADDR)")
	cmd.Flags().Int("chat-rate-limit", 0, "per-IP requests per minute, 0 disables (overrides $CHAT_RATE_LIMIT)")
	cmd.Flags().String("admin-token", "", "bearer token enabling the /entries routes (overrides $ADMIN_TOKEN)")
	return cmd
}

// applyServeFlags overrides configuration with serve flags that were set.
func applyServeFlags(cmd *cobra.Command, cfg *Config) {
	f := cmd.Flags()
	if f.Changed("api-addr") {
		cfg.APIAddr, _ = f.GetString("api-addr")
	}
	if f.Changed("openai-api-key") {
		cfg.OpenAIKey, _ = f.GetString("openai-api-key")
	}
	if f.Changed("openai-model") {
		cfg.OpenAIModel, _ = f.GetString("openai-model")
	}
	if f.Changed("redis-addr") {
		cfg.RedisAddr, _ = f.GetString("redis-addr")
	}
	if f.Changed("chat-rate-limit") {
		cfg.ChatRateLimit, _ = f.GetInt("chat-rate-limit")
	}
	if f.Changed("admin-token") {
		cfg.AdminToken, _ = f.GetString("admin-token")
	}
}

func (a *app) runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := a.cfg
	applyServeFlags(cmd, &cfg)

	dsn := cfg.DSN()
	if store.DetectDSNType(dsn) == store.DSNTypeSQLite {
		lock, err := lockfile.AcquireLock(filepath.Dir(dsn))
		if err != nil {
			return err
		}
		defer lock.Release()
	}

	st, err := store.Open(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	allocator, closeAllocator, err := buildAllocator(ctx, cfg, st)
	if err != nil {
		return err
	}
	defer closeAllocator()

	processor, err := buildReceiptProcessor(cfg)
	if err != nil {
		return err
	}

	ctrl := flow.NewController(buildIntentGate(cfg), flow.NewReceiptIntake(processor, allocator), st)
	chat := messaging.NewChatHandler(ctrl, messaging.WithDedupRepo(st))
	srv := api.NewServer(chat, st,
		api.WithAddr(cfg.APIAddr),
		api.WithChatRateLimit(cfg.ChatRateLimit),
		api.WithAdminToken(cfg.AdminToken))

	slog.Info("Bootstrapping LuckyPipe",
		"dsn_type", store.DetectDSNType(dsn),
		"api_addr", cfg.APIAddr,
		"redis_allocator", cfg.RedisAddr != "",
		"llm_intent", cfg.OpenAIKey != "",
		"ledger_api", cfg.AdminToken != "")
	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	slog.Info("LuckyPipe exited successfully")
	return nil
}

// buildAllocator returns a Redis allocator when Redis is configured and a
// ledger allocator otherwise, with a function releasing its resources.
func buildAllocator(ctx context.Context, cfg Config, ledger store.Ledger) (flow.ReceiptNumberAllocator, func(), error) {
	if cfg.RedisAddr == "" {
		return flow.NewLedgerAllocator(ledger), func() {}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Debug("Using Redis receipt number allocator", "addr", cfg.RedisAddr)
	return flow.NewRedisAllocator(client, ledger), func() { client.Close() }, nil
}

// buildIntentGate returns a keyword gate, with the LLM fallback when an API key is set.
func buildIntentGate(cfg Config) flow.IntentGate {
	var classifier flow.YesNoClassifier
	if cfg.OpenAIKey != "" {
		client, err := genai.NewClient(genai.WithAPIKey(cfg.OpenAIKey), genai.WithModel(cfg.OpenAIModel))
		if err != nil {
			slog.Warn("GenAI client unavailable, intent gate uses keywords only", "error", err)
		} else {
			classifier = client
		}
	}
	return flow.NewKeywordIntentGate(classifier)
}

// buildReceiptProcessor returns the stub processor configured with the stub values.
func buildReceiptProcessor(cfg Config) (*flow.StaticReceiptProcessor, error) {
	amount, err := decimal.NewFromString(cfg.ReceiptStubAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid RECEIPT_STUB_AMOUNT %q: %w", cfg.ReceiptStubAmount, err)
	}
	if amount.IsNegative() || cfg.ReceiptStubConfidence < 0 || cfg.ReceiptStubConfidence > 100 {
		return nil, fmt.Errorf("receipt stub values out of range: amount=%s confidence=%v", amount, cfg.ReceiptStubConfidence)
	}
	return &flow.StaticReceiptProcessor{Amount: amount, Confidence: cfg.ReceiptStubConfidence}, nil
}
