package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/engine"
	"syncServer/backend/internal/httpapi/handlers"
	"syncServer/backend/internal/httpapi/middleware"
	"syncServer/backend/internal/presence"
	"syncServer/backend/internal/store"
	"syncServer/backend/internal/ws"
)

type SyncConfig struct {
	Running struct {
		Port int `mapstructure:"port"`
	} `mapstructure:"running"`
	Mysql struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"mysql"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"kafka"`
	Presence struct {
		GraceWindowSeconds     int `mapstructure:"graceWindowSeconds"`
		SweepIntervalSeconds   int `mapstructure:"sweepIntervalSeconds"`
		HeartbeatWindowSeconds int `mapstructure:"heartbeatWindowSeconds"`
		LivenessTTLSeconds     int `mapstructure:"livenessTTLSeconds"`
	} `mapstructure:"presence"`
}

func initConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{}
	v := viper.New()
	v.SetConfigName("syncConfig")
	v.SetConfigType("yaml")
	// Works whether the process starts from the repo root or from backend/.
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func seconds(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * time.Second
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("redis unreachable: %v", err)
	}
	defer rdb.Close()

	db, err := gorm.Open(mysql.Open(cfg.Mysql.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("mysql unreachable: %v", err)
	}

	docStore := store.NewDocumentStore(db)
	if err := docStore.Migrate(); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	kafkaCfg := sarama.NewConfig()
	// SyncProducer requires Return.Successes.
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("kafka unreachable: %v", err)
	}
	defer producer.Close()

	kafkaSem := engine.NewSemaphore(0)
	editSem := engine.NewSemaphore(0)
	dispatcher := engine.NewKafkaDispatcher(producer, cfg.Kafka.Topic, kafkaSem,
		engine.KafkaDispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  1 * time.Second,
		})

	eng := engine.NewMemoryEngine(docStore, dispatcher)
	liveness := cache.NewRedisLiveness(rdb)

	hub := ws.NewHub()
	tracker := presence.NewTracker(
		seconds(cfg.Presence.GraceWindowSeconds, 60),
		func(roomKey string, roster []presence.Member) {
			// Sweep-driven roster changes only matter to project rooms.
			roomID, ok := strings.CutPrefix(roomKey, "project:")
			if !ok {
				return
			}
			hub.Broadcast(roomKey, ws.RoomUsersMessage{Type: "room-users", RoomID: roomID, Users: roster})
		})
	go tracker.Run(ctx, seconds(cfg.Presence.SweepIntervalSeconds, 15))

	manager := ws.NewManager(hub, eng, tracker, liveness, editSem, ws.ManagerOptions{
		HeartbeatWindow: seconds(cfg.Presence.HeartbeatWindowSeconds, 90),
		LivenessTTL:     seconds(cfg.Presence.LivenessTTLSeconds, 600),
	})
	docHandler := handlers.NewDocumentHandler(docStore)

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	collab := r.Group("/collab")
	collab.Use(middleware.AuthMiddleware())
	collab.GET("/ws", manager.WebSocketConnect)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware())
	v1.POST("/files", docHandler.CreateFile)
	v1.GET("/files/content", docHandler.GetFile)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "ok"})
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: r,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen failed: %v", err)
		}
	}()
	log.Printf("sync server listening on :%d", cfg.Running.Port)

	<-ctx.Done()
	log.Printf("shutting down")

	// Tell every connection before pulling the plug.
	hub.Shutdown("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
