package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Rituearth/SADDIE-2.0/internal/agent"
	"github.com/Rituearth/SADDIE-2.0/internal/checkout"
	"github.com/Rituearth/SADDIE-2.0/internal/config"
	"github.com/Rituearth/SADDIE-2.0/internal/httpserver"
	"github.com/Rituearth/SADDIE-2.0/internal/llm"
	"github.com/Rituearth/SADDIE-2.0/internal/menu"
	"github.com/Rituearth/SADDIE-2.0/internal/rtc"
	"github.com/Rituearth/SADDIE-2.0/internal/tts"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Answer browser calls over WebRTC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(false)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddress = addr
			}
			return serve(cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDRESS)")
	return cmd
}

func serve(cfg config.Config) error {
	if err := cfg.Validate(true); err != nil {
		return err
	}

	catalog := menu.Default()
	orders, err := orderSink(cfg)
	if err != nil {
		return err
	}

	calls := rtc.NewHandler(rtc.Deps{
		Session:       sessionConfig(cfg),
		LLM:           llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID, menu.PersonaPrompt(catalog)),
		Orders:        orders,
		Synthesizer:   synthesizer(cfg),
		AssemblyAIKey: cfg.AssemblyAIKey,
		ICEServers:    rtc.ParseICEServers(cfg.ICEServersJSON),
	})
	defer calls.Close()

	server := &http.Server{
		Addr: cfg.HTTPAddress,
		Handler: httpserver.New(calls, httpserver.Options{
			CallPassword:    cfg.CallPassword,
			TwilioAuthToken: cfg.TwilioAuthToken,
			PublicURL:       cfg.PublicURL,
			Catalog:         catalog,
			Business:        menu.Info,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddress).Str("tts", cfg.TTSProvider).Bool("orders", orders != nil).Msg("server listening")
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Int("active_calls", calls.ActiveCalls()).Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown failed")
		_ = server.Close()
	}
	return nil
}

func sessionConfig(cfg config.Config) agent.Config {
	return agent.Config{
		Listen:        cfg.Listen(),
		Catalog:       menu.Default(),
		Greeting:      menu.Greeting,
		GreetingDelay: cfg.GreetingDelay,
		TurnTimeout:   cfg.TurnTimeout,
	}
}

func synthesizer(cfg config.Config) tts.Synthesizer {
	if cfg.TTSProvider == config.TTSElevenLabs {
		return tts.NewElevenLabsClient(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
	}
	dg := tts.NewDeepgramClient(cfg.DeepgramKey, cfg.DeepgramModel)
	log.Info().Str("model", dg.Voice().Model).Msg("deepgram voice selected")
	return dg
}

// orderSink returns nil when Supabase is not configured; orders then stay in the session.
func orderSink(cfg config.Config) (agent.OrderSink, error) {
	if !cfg.OrdersEnabled() {
		return nil, nil
	}
	store, err := checkout.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.OrdersTable, cfg.ReceiptsBucket)
	if err != nil {
		return nil, err
	}
	var sms checkout.Texter
	if cfg.SMSEnabled() {
		sms = checkout.NewTwilioTexter(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, cfg.PublicURL)
	}
	return checkout.New(store, store.Receipts(), sms, menu.Info.Name), nil
}
