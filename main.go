package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/godocompany/meetsession-api/config"
	"github.com/godocompany/meetsession-api/services"
	"github.com/godocompany/meetsession-api/signaling"
	v1 "github.com/godocompany/meetsession-api/v1"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errInvalidDatabaseURL = errors.New("failed to create database driver, check the DB_URL environment variable")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("command failed")
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "meetsession-api",
		Short:         "Signaling hub and persistence API for live meeting sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	return rootCmd
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ConfigureLogging()

			if _, err := OpenDatabase(cfg.DatabaseURL); err != nil {
				return err
			}
			logrus.Info("database schema is up to date")
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the socket.io transport and the websocket transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ConfigureLogging()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {

	//================================================================================
	// Create the database connection
	//================================================================================

	db, err := OpenDatabase(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	//================================================================================
	// Setup the signaling hub and its transports
	//================================================================================

	hub := signaling.NewHub(signaling.NewRegistry())

	// Create the socket.io server
	socketIoServer := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&polling.Transport{
				CheckOrigin: services.CheckOrigin(cfg.CorsAllowOrigins),
			},
			&websocket.Transport{
				CheckOrigin: services.CheckOrigin(cfg.CorsAllowOrigins),
			},
		},
	})
	socketsService := &services.SocketsService{
		Server: socketIoServer,
		Hub:    hub,
	}
	socketsService.Setup()

	// Plain websocket transport for native clients
	webSocketsService := &services.WebSocketsService{
		Hub:            hub,
		AllowedOrigins: cfg.CorsAllowOrigins,
		PongWait:       cfg.SignalingPongWait,
	}

	//================================================================================
	// Create all the service instances
	//================================================================================

	meetingsService := &services.MeetingsService{
		DB:          db,
		FrontendURL: cfg.FrontendURL,
	}
	messagesService := &services.MessagesService{
		Store: &services.GormMessageStore{DB: db},
		Mode:  services.ParseDedupMode(cfg.DedupMode),
	}
	uploadsService := &services.UploadsService{
		DB:              db,
		MeetingsService: meetingsService,
		Dir:             cfg.UploadsDir,
		BaseURL:         cfg.FrontendURL,
		MaxSize:         cfg.MaxUploadSizeBytes,
	}

	//================================================================================
	// Setup the Gin HTTP router
	//================================================================================

	r := gin.New()
	r.Use(gin.Recovery())

	// Configure CORS for the API
	corsCfg := cors.DefaultConfig()
	if len(cfg.CorsAllowOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CorsAllowOrigins
		corsCfg.AllowCredentials = true
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AddAllowHeaders("Accept", "User-Agent", "Authorization")
	r.Use(cors.New(corsCfg))

	// Create the API instance
	api := &v1.Server{
		MeetingsService: meetingsService,
		MessagesService: messagesService,
		UploadsService:  uploadsService,
		Hub:             hub,
	}

	// Mount the API routes
	api.Setup(r.Group("v1"))
	api.SetupUploads(r)

	// Create a mux to serve the HTTP, Socket.IO and websocket servers
	mux := http.NewServeMux()
	mux.Handle("/socket.io/", socketIoServer)
	mux.Handle("/ws", webSocketsService)
	mux.Handle("/", r)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	//================================================================================
	// Run until the context is cancelled
	//================================================================================

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Serve returns once the server is closed
		if err := socketIoServer.Serve(); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logrus.WithField("addr", cfg.HTTPAddr).Info("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logrus.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		hub.Close()
		err := httpServer.Shutdown(shutdownCtx)
		if closeErr := socketIoServer.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		return err
	})
	return g.Wait()

}
