package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"realty-agent/handler"
	"realty-agent/internal/integrations/gemini"
	"realty-agent/internal/integrations/paramstore"
	"realty-agent/internal/integrations/sheets"
	"realty-agent/internal/integrations/twilio"
	"realty-agent/internal/repository"
	"realty-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	stateTable := mustEnv("STATE_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	sheetID := mustEnv("SHEET_ID")
	agentName := envStr("AGENT_NAME", "Sherri")
	targetYear := envInt("TARGET_YEAR", 2026)
	contextTurns := envInt("MAX_CONTEXT_TURNS", 3)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}
	geminiClient, err := gemini.NewClient(ctx, ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Gemini client", "err", err)
		os.Exit(1)
	}
	twilioClient, err := twilio.NewClient(ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Twilio client", "err", err)
		os.Exit(1)
	}
	sheetValues, err := sheets.NewValues(ctx, ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create Sheets client", "err", err)
		os.Exit(1)
	}
	mirror, err := sheets.NewMirror(sheetValues, sheetID, stateClient)
	if err != nil {
		slog.Error("failed to create sheet mirror", "err", err)
		os.Exit(1)
	}

	// ---- Pipeline ----
	scheduler, err := usecase.NewScheduler(stateClient, mirror, twilioClient, agentName, slog.Default())
	if err != nil {
		slog.Error("failed to create scheduler", "err", err)
		os.Exit(1)
	}
	pipeline, err := usecase.NewPipeline(ssmClient, geminiClient, stateClient, twilioClient, scheduler, paramPrefix, agentName, targetYear, contextTurns, slog.Default())
	if err != nil {
		slog.Error("failed to create pipeline", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(pipeline)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envStr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
