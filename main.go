package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"fireplay/api"
	"fireplay/clients/gcp"
	"fireplay/clients/identity"
	"fireplay/clients/kv"
	"fireplay/clients/rawg"
	"fireplay/device"
	"fireplay/envvars"
	"fireplay/routes"
	"fireplay/services/catalog"
	"fireplay/services/contact"
	"fireplay/services/favorites"
	"fireplay/validator"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	ginmiddleware "github.com/oapi-codegen/gin-middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	env := envvars.GetEvn()
	setupLogger(env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := gcp.CreateFirestore(ctx, env.FirebaseProjectID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to firestore")
	}
	defer db.Close()

	storage := newStorage(env)
	if closer, ok := storage.(io.Closer); ok {
		defer closer.Close()
	}

	registry := device.NewRegistry(
		device.Config{Size: env.MaxDevices, TTL: env.DeviceTTL},
		storage,
		identity.NewClient(resty.New().SetTimeout(10*time.Second), env.FirebaseAPIKey),
		favorites.NewFirestoreCollection(db),
	)
	defer registry.Close()

	server := NewServer(
		catalog.NewService(rawg.NewClient(rawg.NewHTTPClient(rawg.DefaultBaseURL), env.RawgAPIKey)),
		contact.NewService(contact.NewFirestoreWriter(db)),
		env.TaxRate,
	)
	verifier := validator.NewVerifier(env.FirebaseProjectID, validator.NewRemoteKeys(ctx, validator.GoogleSecureTokenJWKS))

	swagger, err := api.GetSwagger()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load swagger spec file")
	}

	if envvars.IsProd(env) {
		gin.SetMode(gin.ReleaseMode)
	}
	r := newRouter(server, registry, verifier, swagger)

	s := &http.Server{
		Handler: r,
		Addr:    "0.0.0.0:" + env.Port,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shut down HTTP server")
		}
	}()

	log.Info().Str("port", env.Port).Str("env", env.Environment).Msg("Starting HTTP server")
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server stopped")
	}
}

func setupLogger(env envvars.Env) {
	zerolog.TimeFieldFormat = time.RFC3339
	if envvars.IsDev(env) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// newStorage keeps cart slots in Redis when REDIS_ADDR is set and in memory
// otherwise.
func newStorage(env envvars.Env) kv.Storage {
	if env.RedisAddr == "" {
		log.Warn().Msg("REDIS_ADDR not set, carts are kept in memory")
		return kv.NewMemory()
	}
	storage, err := kv.NewRedis(kv.RedisConfig{
		Addr:     env.RedisAddr,
		Password: env.RedisPassword,
		TTL:      env.DeviceTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Str("addr", env.RedisAddr).Msg("failed to connect to redis")
	}
	return storage
}

func newRouter(server Server, registry *device.Registry, verifier *validator.Verifier, swagger *openapi3.T) *gin.Engine {
	// Clear out the servers array in the swagger spec, that skips validating
	// that server names match. We don't know how this thing will be run.
	swagger.Servers = nil

	r := gin.New()
	r.Use(requestLogger(), gin.Recovery())
	config := cors.DefaultConfig()
	config.AllowOriginFunc = func(string) bool { return true }
	config.AllowCredentials = true
	config.AddAllowHeaders("Authorization")
	r.Use(cors.New(config))

	r.GET("/openapi", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/x-yaml", api.Document)
	})

	r.Use(routes.Guard())
	r.Use(ginmiddleware.OapiRequestValidatorWithOptions(swagger, &ginmiddleware.Options{
		ErrorHandler: validationError,
		Options: openapi3filter.Options{
			AuthenticationFunc: verifier.Authenticate,
		},
	}))
	r.Use(routes.Device(registry), routes.Resolve(verifier), routes.MirrorAuth())
	server.Routes(r)
	return r
}

func validationError(c *gin.Context, message string, statusCode int) {
	if strings.Contains(message, "SecurityRequirementsError") || strings.Contains(message, "security requirements failed") {
		statusCode = http.StatusUnauthorized
	}
	c.AbortWithStatusJSON(statusCode, api.Error{Error: message})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}
