// Copyright (C) 2025 Refua Labs (dev@refualabs.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/refualabs/medassist/pkg/logging"
	"github.com/refualabs/medassist/services/llm"
	"github.com/refualabs/medassist/services/medchat/datatypes"
	"github.com/refualabs/medassist/services/medchat/knowledge"
	"github.com/refualabs/medassist/services/medchat/observability"
	"github.com/refualabs/medassist/services/medchat/routes"
	"github.com/refualabs/medassist/services/medchat/services"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "medassist-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("medchat-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// intEnv reads a positive integer from the environment, logging and
// falling back to def on absence or garbage.
func intEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		slog.Warn("Invalid integer env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return n
}

func main() {
	port := os.Getenv("MEDCHAT_PORT")
	if port == "" {
		port = "8000"
	}

	logger := logging.Setup("medchat-service")
	defer logger.Close()

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	metrics := observability.InitMetrics()

	weaviateURL := os.Getenv("WEAVIATE_SERVICE_URL")
	// Trim quotes and whitespace in case the container runtime passes them literally
	weaviateURL = strings.Trim(weaviateURL, "\"' ")

	var searcher knowledge.Searcher

	if weaviateURL != "" && strings.Contains(weaviateURL, "http") {
		parsedURL, err := url.Parse(weaviateURL)
		if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
			slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running with in-memory knowledge index.",
				"url", weaviateURL, "error", err)
		} else {
			clientConf := weaviate.Config{
				Host:   parsedURL.Host,
				Scheme: parsedURL.Scheme,
			}
			weaviateClient, err := weaviate.NewClient(clientConf)
			if err != nil {
				slog.Error("Failed to create Weaviate client", "error", err)
			} else {
				if err := knowledge.EnsureSchema(context.Background(), weaviateClient); err != nil {
					log.Fatalf("Failed to ensure knowledge base schema: %v", err)
				}
				searcher = knowledge.NewWeaviateIndex(weaviateClient)
			}
		}
	}
	if searcher == nil {
		slog.Info("WEAVIATE_SERVICE_URL not set or unusable. Using empty in-memory knowledge index.")
		searcher = knowledge.NewMemoryIndex()
	}

	var gateway llm.Gateway
	provider := strings.ToLower(os.Getenv("LLM_PROVIDER"))
	switch provider {
	case "ollama":
		log.Println("Configuring the Ollama gateway")
		gateway, err = llm.NewOllama()
	default:
		log.Println("Configuring the Azure OpenAI gateway")
		gateway, err = llm.NewAzureOpenAI()
	}
	if err != nil {
		log.Fatalf("Failed to initialize LLM gateway: %v", err)
	}

	topK := intEnv("RAG_TOP_K", 5)
	maxHistory := intEnv("MAX_CONVERSATION_HISTORY", datatypes.DefaultMaxHistory)

	chatService := services.NewDefaultChatService(gateway, searcher, metrics, topK, maxHistory)

	router := gin.Default()
	router.Use(otelgin.Middleware("medchat-service"))

	routes.SetupRoutes(router, chatService, searcher, true, os.Getenv("MEDCHAT_API_KEY"))

	log.Println("Starting the medchat server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
