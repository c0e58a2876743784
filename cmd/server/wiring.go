package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/vetcheck/internal/chat"
	"github.com/ashureev/vetcheck/internal/config"
	"github.com/ashureev/vetcheck/internal/emergency"
	"github.com/ashureev/vetcheck/internal/telemetry"
	"github.com/ashureev/vetcheck/internal/vision"
)

// newImageAnalyzer builds the provider chain VQA -> Hugging Face -> heuristic.
// The VQA client is also returned for the question endpoint; it is nil when disabled.
func newImageAnalyzer(cfg *config.Config, logger *slog.Logger, metrics *telemetry.Instruments) (*vision.Orchestrator, *vision.VQAClient) {
	var (
		providers []vision.Provider
		vqa       *vision.VQAClient
	)
	if cfg.Vision.VQAEnabled {
		vqa = vision.NewVQAClient(cfg.Vision.VQAURL, cfg.Vision.ConnectTimeout,
			vision.WithVQATimeouts(cfg.Vision.ProbeTimeout, cfg.Vision.ReadTimeout))
		providers = append(providers, vqa)
	}
	if cfg.Vision.HFToken != "" {
		providers = append(providers, vision.NewHuggingFaceClient(cfg.Vision.HFToken, cfg.Vision.HFModelURL,
			cfg.Vision.ConnectTimeout, cfg.Vision.ReadTimeout))
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logger.Info("Image analysis initialized", "providers", names, "workers", cfg.Vision.MaxWorkers)

	return vision.NewOrchestrator(providers,
		vision.WithMaxWorkers(cfg.Vision.MaxWorkers),
		vision.WithLogger(logger),
		vision.WithInstruments(metrics),
	), vqa
}

// newReplyGenerator selects the conversational provider named by CHAT_PROVIDER.
func newReplyGenerator(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *telemetry.Instruments) (*chat.Generator, error) {
	var provider chat.Conversational
	switch cfg.Chat.Provider {
	case config.ChatProviderOpenAI:
		provider = chat.NewCompletionsClient(cfg.Chat.APIURL, cfg.Chat.APIKey,
			chat.WithModel(cfg.Chat.Model), chat.WithConnectTimeout(cfg.Vision.ConnectTimeout))
	case config.ChatProviderGemini:
		gc, err := chat.NewGeminiClient(ctx, cfg.Chat.GeminiAPIKey, cfg.Chat.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		provider = gc
	}
	if provider == nil {
		logger.Info("AI replies disabled, using rule-based fallback")
	} else {
		logger.Info("Chat provider initialized", "provider", provider.Name())
	}
	return chat.NewGenerator(provider,
		chat.WithTimeout(cfg.Chat.Timeout),
		chat.WithLogger(logger),
		chat.WithInstruments(metrics),
	), nil
}

// newDirectory builds the clinic directory, optionally backed by Nominatim.
func newDirectory(cfg *config.Config, logger *slog.Logger, metrics *telemetry.Instruments) *emergency.Service {
	opts := []emergency.Option{emergency.WithLogger(logger), emergency.WithInstruments(metrics)}
	if cfg.Lookup.NominatimEnabled {
		opts = append(opts, emergency.WithSearcher(emergency.NewNominatimClient(cfg.Lookup.NominatimURL, nil)))
		logger.Info("Nominatim clinic search enabled", "url", cfg.Lookup.NominatimURL)
	}
	return emergency.NewService(opts...)
}
