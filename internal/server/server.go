package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"reader-gateway/internal/bridge"
	"reader-gateway/internal/db"
	"reader-gateway/internal/handlers"
	"reader-gateway/internal/repositories"
	"reader-gateway/internal/routes"
	"reader-gateway/internal/services"
	"reader-gateway/internal/workers"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
)

// corsMiddleware adds CORS headers to all responses
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewServer wires the gateway together. The returned pool holds the running
// background workers so the caller can stop them on shutdown.
func NewServer() (*http.Server, *workers.WorkerPool) {
	logger := log.New(os.Stdout, "[SERVER] ", log.LstdFlags)

	assistantClient := initializeAssistantClient(logger)
	audioCache, shareRepo := initializeRepositories(logger)

	history, err := services.NewHistoryBudget(services.DefaultHistoryBudget, logger)
	if err != nil {
		logger.Printf("⚠️  History trimming disabled: %v", err)
	}

	sessionService := services.NewSessionService(assistantClient, history, logger)
	roadmapService := services.NewRoadmapService(assistantClient, logger)
	speechService := services.NewSpeechService(assistantClient, audioCache, logger)
	shareService := services.NewShareService(assistantClient, shareRepo, logger)
	viewerBridge := bridge.NewBridge(sessionService, logger)

	pool := startWorkers(sessionService, logger)

	h := &routes.Handlers{
		Home:    handlers.HomeHandler,
		Session: handlers.NewSessionHandler(sessionService, logger),
		Viewer:  handlers.NewViewerHandler(viewerBridge, sessionService, logger),
		Roadmap: handlers.NewRoadmapHandler(roadmapService, sessionService, viewerBridge, logger),
		Speech:  handlers.NewSpeechHandler(speechService, logger),
		Share:   handlers.NewShareHandler(shareService, logger),
		Health:  handlers.NewHealthHandler(assistantClient, sessionService, pool, logger),
	}

	router := mux.NewRouter()
	routes.RegisterRoutes(router, h)

	// Add Swagger endpoints
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"), // The url pointing to API definition
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("none"),
		httpSwagger.DomID("swagger-ui"),
	))

	return &http.Server{
		Addr:    getServerAddr(),
		Handler: corsMiddleware(router),
	}, pool
}

// initializeAssistantClient creates and configures the assistant backend client
func initializeAssistantClient(logger *log.Logger) *services.AssistantClient {
	backendURL := os.Getenv("ASSISTANT_BACKEND_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8000"
	}

	logger.Printf("Initializing assistant client: %s", backendURL)
	return services.NewAssistantClient(backendURL, logger)
}

// initializeRepositories creates the Redis-backed repositories. When Redis is
// not reachable the gateway still runs; audio caching and share history are
// simply disabled.
func initializeRepositories(logger *log.Logger) (repositories.AudioCache, repositories.ShareRepository) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisConfig := getRedisConfig()
	logger.Printf("Connecting to Redis: %s:%d (DB: %d)", redisConfig.Host, redisConfig.Port, redisConfig.DB)

	redisClient, err := db.NewRedisClient(redisConfig)
	if err != nil {
		logger.Printf("❌ Failed to create Redis client: %v", err)
		logger.Println("   Audio caching and share history will be disabled")
		return nil, nil
	}

	if err := redisClient.Ping(ctx); err != nil {
		logger.Printf("❌ Redis connection failed: %v", err)
		logger.Println("   Audio caching and share history will be disabled")
		logger.Println("   Hint: Ensure Redis is running (docker run -d -p 6379:6379 redis:7-alpine)")
		return nil, nil
	}
	logger.Println("✅ Redis connected successfully")

	audioCache := repositories.NewRedisAudioCache(redisClient.GetClient())
	shareRepo := repositories.NewRedisShareRepository(redisClient.GetClient())

	return audioCache, shareRepo
}

// getRedisConfig reads Redis configuration from environment variables
func getRedisConfig() db.RedisConfig {
	config := db.DefaultRedisConfig()

	if host := os.Getenv("REDIS_HOST"); host != "" {
		config.Host = host
	}

	if portStr := os.Getenv("REDIS_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			config.Port = port
		}
	}

	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		config.Password = password
	}

	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if dbNum, err := strconv.Atoi(dbStr); err == nil {
			config.DB = dbNum
		}
	}

	if poolSizeStr := os.Getenv("REDIS_POOL_SIZE"); poolSizeStr != "" {
		if poolSize, err := strconv.Atoi(poolSizeStr); err == nil {
			config.PoolSize = poolSize
		}
	}

	return config
}

// getSessionTTL reads the idle-session lifetime from the environment
func getSessionTTL() time.Duration {
	if minutesStr := os.Getenv("SESSION_TTL_MINUTES"); minutesStr != "" {
		if minutes, err := strconv.Atoi(minutesStr); err == nil && minutes > 0 {
			return time.Duration(minutes) * time.Minute
		}
	}
	return workers.DefaultSessionTTL
}

// getServerAddr reads the listen address from the environment
func getServerAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8080"
}

// startWorkers initializes and starts the background workers
func startWorkers(sessions *services.SessionService, logger *log.Logger) *workers.WorkerPool {
	workerLogger := &simpleLogger{logger: logger}

	reaper := workers.NewSessionReaper(workers.SessionReaperConfig{
		WorkerConfig: workers.WorkerConfig{
			WorkerName:      "session-reaper",
			PollInterval:    time.Minute,
			ShutdownTimeout: 30 * time.Second,
			EnableRecovery:  true,
		},
		Sessions:   sessions,
		SessionTTL: getSessionTTL(),
		Logger:     workerLogger,
	})

	pool := workers.NewWorkerPool()
	pool.AddWorker(reaper)

	if err := pool.StartAll(context.Background()); err != nil {
		logger.Printf("⚠️  Failed to start background workers: %v", err)
	} else {
		logger.Println("✅ Session reaper started")
	}

	return pool
}

// simpleLogger wraps log.Logger to implement workers.Logger interface
type simpleLogger struct {
	logger *log.Logger
}

func (l *simpleLogger) Info(msg string, args ...interface{}) {
	l.logger.Printf("[INFO] "+msg, args...)
}

func (l *simpleLogger) Error(msg string, args ...interface{}) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

func (l *simpleLogger) Warn(msg string, args ...interface{}) {
	l.logger.Printf("[WARN] "+msg, args...)
}

func (l *simpleLogger) Debug(msg string, args ...interface{}) {
	l.logger.Printf("[DEBUG] "+msg, args...)
}
