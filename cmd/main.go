package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"synxronlibrary/internal/auth"
	"synxronlibrary/internal/config"
	"synxronlibrary/internal/handler"
	"synxronlibrary/internal/repository"
	"synxronlibrary/internal/service"
	"synxronlibrary/internal/service/cache"
	"synxronlibrary/internal/service/s3"
)

func connectWithRetry(cfg *config.Config, maxAttempts int, delay time.Duration) (*sqlx.DB, error) {
	dsn := cfg.Database.GetDSN()

	// Сначала подключаемся к системной базе postgres, которая всегда существует
	pgDSN := strings.Replace(dsn, "dbname="+cfg.Database.Name, "dbname=postgres", 1)
	pgDB, err := sqlx.Connect("postgres", pgDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres database: %v", err)
	}
	defer pgDB.Close()

	var exists bool
	err = pgDB.Get(&exists, "SELECT EXISTS(SELECT datname FROM pg_catalog.pg_database WHERE datname = $1)", cfg.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %v", err)
	}

	// Если базы нет, создаем её
	if !exists {
		log.Printf("Database %s does not exist, creating...", cfg.Database.Name)
		_, err = pgDB.Exec(fmt.Sprintf("CREATE DATABASE %s", cfg.Database.Name))
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %v", err)
		}
	}

	var db *sqlx.DB
	for i := 0; i < maxAttempts; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (attempt %d/%d): %v", i+1, maxAttempts, err)
		time.Sleep(delay)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %v", maxAttempts, err)
}

func runMigrations(cfg *config.Config) error {
	databaseURL := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	var m *migrate.Migrate
	var err error

	for i := 0; i < 5; i++ {
		m, err = migrate.New("file://migrations", databaseURL)
		if err == nil {
			break
		}
		log.Printf("Failed to create migrate instance (attempt %d/5): %v", i+1, err)
		time.Sleep(time.Second * 5)
	}

	if err != nil {
		return fmt.Errorf("failed to create migrate instance after retries: %w", err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if dirty {
		log.Printf("Found dirty database state at version %d, attempting to force version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("failed to force version: %w", err)
		}
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func main() {
	// Загружаем конфигурации
	appConfig, err := config.NewConfig(".app.env")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := connectWithRetry(appConfig, 5, time.Second*5)
	if err != nil {
		log.Fatalf("Failed to connect to database after retries: %v", err)
	}
	defer db.Close()

	if err := runMigrations(appConfig); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Инициализация S3 клиента
	s3Config, err := s3.NewConfig(".s3.env")
	if err != nil {
		log.Fatalf("Failed to load S3 config: %v", err)
	}

	s3Client, err := s3.NewClient(s3Config)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	// Инициализация проверки токенов
	authConfig, err := auth.NewConfig(".auth.env")
	if err != nil {
		log.Fatalf("Failed to load auth config: %v", err)
	}
	auth.Init(authConfig)

	// Кэш разрешённых значений в Redis. Недоступный Redis не мешает старту:
	// сервис работает без кэша
	var resolutionCache *cache.Cache
	cacheConfig, err := cache.NewConfig(".redis.env")
	if err != nil {
		log.Printf("Failed to load cache config, running without cache: %v", err)
	} else {
		resolutionCache, err = cache.New(cacheConfig)
		if err != nil {
			log.Printf("Failed to connect to Redis, running without cache: %v", err)
			resolutionCache = nil
		}
	}

	// Инициализация репозиториев
	itemRepo := repository.NewItemRepository(db, appConfig.Library.MaxDepth)
	grantRepo := repository.NewGrantRepository(db)
	gateRepo := repository.NewRoleGateRepository(db)
	userRepo := repository.NewUserRepository(db)
	tagRepo := repository.NewTagRepository(db)
	favoriteRepo := repository.NewFavoriteRepository(db)

	// Административный статус и внешние роли берём из проверенного токена
	isAdmin := func(ctx context.Context, userID string) bool {
		claims := auth.FromContext(ctx)
		return claims != nil && claims.UserID == userID && claims.IsAdmin()
	}
	userRoles := func(ctx context.Context, userID string) []string {
		claims := auth.FromContext(ctx)
		if claims == nil || claims.UserID != userID {
			return nil
		}
		return claims.Roles
	}

	// Инициализация сервисов
	permissionService := service.NewPermissionService(
		itemRepo, grantRepo, gateRepo, resolutionCache, isAdmin, userRoles, appConfig.Library.MaxDepth)
	itemService := service.NewItemService(itemRepo, grantRepo, userRepo, favoriteRepo, resolutionCache, permissionService)
	grantService := service.NewGrantService(itemRepo, grantRepo, gateRepo, userRepo, resolutionCache, permissionService)
	ownershipService := service.NewOwnershipService(itemRepo, grantRepo, userRepo, permissionService)
	tagService := service.NewTagService(itemRepo, tagRepo, permissionService)
	mediaService := service.NewMediaService(
		itemRepo, s3Client, resolutionCache, permissionService,
		appConfig.Library.PayloadURLTTL, appConfig.Library.VideoDomains)

	// Инициализация хендлеров
	itemHandler := handler.NewItemHandler(itemService)
	accessHandler := handler.NewAccessHandler(grantService, ownershipService, permissionService, itemService)
	tagHandler := handler.NewTagHandler(tagService)
	mediaHandler := handler.NewMediaHandler(mediaService)

	// Настройка HTTP роутера
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Minute))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(auth.Middleware)

	// HTTP маршруты
	r.Route("/v1", func(r chi.Router) {
		r.Post("/items", itemHandler.CreateItem)
		r.Get("/items/personal-root", itemHandler.GetPersonalRoot)
		r.Get("/items/created-by-me", itemHandler.ListCreatedByMe)
		r.Get("/items/shared-with-me", itemHandler.ListSharedWithMe)
		r.Get("/items/accessible", itemHandler.ListAccessible)
		r.Get("/items/favorites", itemHandler.ListFavorites)

		r.Route("/items/{id}", func(r chi.Router) {
			r.Get("/", itemHandler.GetItem)
			r.Delete("/", itemHandler.DeleteItem)
			r.Get("/contents", itemHandler.GetContents)
			r.Get("/breadcrumbs", itemHandler.GetBreadcrumbs)
			r.Put("/rename", itemHandler.RenameItem)
			r.Put("/move", itemHandler.MoveItem)
			r.Put("/general-access", itemHandler.SetGeneralAccess)
			r.Post("/restore", itemHandler.RestoreItem)
			r.Post("/favorite", itemHandler.ToggleFavorite)

			r.Get("/capabilities", accessHandler.GetCapabilities)
			r.Get("/owner", accessHandler.GetOwner)
			r.Post("/transfer", accessHandler.TransferOwnership)

			r.Post("/grants", accessHandler.ShareItem)
			r.Get("/grants", accessHandler.ListGrants)
			r.Delete("/grants", accessHandler.RevokeGrant)

			r.Post("/gates", accessHandler.AddGate)
			r.Get("/gates", accessHandler.ListGates)
			r.Delete("/gates", accessHandler.RemoveGate)

			r.Post("/payload", mediaHandler.UploadPayload)
			r.Get("/payload", mediaHandler.GetPayload)
			r.Get("/download", mediaHandler.Download)

			r.Get("/tags", tagHandler.ListItemTags)
			r.Put("/tags/{tagID}", tagHandler.AttachTag)
			r.Delete("/tags/{tagID}", tagHandler.DetachTag)
		})

		r.Post("/tags", tagHandler.CreateTag)
		r.Get("/tags", tagHandler.ListTags)
	})

	// Создаем HTTP сервер
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", appConfig.Server.Port),
		Handler: r,
	}

	// Канал для сигналов завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting HTTP server on port %s", appConfig.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Ожидаем сигнал завершения
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}

	if resolutionCache != nil {
		if err := resolutionCache.Close(); err != nil {
			log.Printf("Error closing Redis connection: %v", err)
		}
	}

	if err := db.Close(); err != nil {
		log.Printf("Error closing database connection: %v", err)
	}

	log.Println("Server exited properly")
}
