package main

import (
	"context"
	"database/sql"
	"log"
	"math/rand"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/Tusharvaishnav005/Chatbot/internal/chat"
	"github.com/Tusharvaishnav005/Chatbot/internal/config"
	"github.com/Tusharvaishnav005/Chatbot/internal/reply"
	"github.com/Tusharvaishnav005/Chatbot/internal/web"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// --- Store ---
	repo, closeRepo := mustRepo(cfg)
	defer closeRepo()

	// --- Replies ---
	table := reply.DefaultTable()
	if cfg.RepliesFile != "" {
		table, err = reply.LoadTable(cfg.RepliesFile)
		if err != nil {
			log.Fatalf("replies error: %v", err)
		}
		log.Printf("loaded reply table from %s", cfg.RepliesFile)
	}
	var rnd reply.Rand
	if cfg.HasRandomSeed {
		rnd = rand.New(rand.NewSource(cfg.RandomSeed))
	}
	selector := reply.NewSelector(table, rnd)

	// --- Router ---
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// --- Chat module wiring ---
	chatService, err := chat.NewService(repo, selector)
	if err != nil {
		log.Fatalf("service error: %v", err)
	}
	chatHandler, err := chat.NewHandler(chatService)
	if err != nil {
		log.Fatalf("handler error: %v", err)
	}

	chat.RegisterRoutes(r, chatHandler)
	web.RegisterRoutes(r)

	// --- health ---
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})

	log.Printf("listening on :%s (store=%s)", cfg.Port, cfg.StoreBackend)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func mustRepo(cfg *config.Config) (chat.Repo, func()) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch cfg.StoreBackend {
	case config.BackendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			log.Fatalf("aws config error: %v", err)
		}
		repo, err := chat.NewDynamoRepo(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
		if err != nil {
			log.Fatalf("dynamodb repo error: %v", err)
		}
		return repo, func() {}

	case config.BackendMemory:
		log.Println("using in-memory store; history is lost on restart")
		return chat.NewMemoryRepo(), func() {}

	default:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		if err := db.PingContext(ctx); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		if err := chat.Migrate(ctx, db); err != nil {
			log.Fatalf("db migrate error: %v", err)
		}
		return chat.NewRepo(db), func() { db.Close() }
	}
}
