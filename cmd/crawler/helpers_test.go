package main

import (
	"log/slog"
	"os"

	"github.com/sydlexius/crawler/internal/model"
	"github.com/sydlexius/crawler/internal/provider"
)

type providerResult = provider.Result[*model.Artist]

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}
