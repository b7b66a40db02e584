// file: main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CTFBox/controllers"
	"CTFBox/database"
	"CTFBox/models"
	"CTFBox/routes"
	"CTFBox/services"
)

func main() {
	database.Connect()

	// 禁用自动迁移 (推荐)，需要时可调用 database.MigrateTables()

	if err := models.ApplyDefaultSettings(database.DB); err != nil {
		log.Fatalf("Failed to seed default settings: %v", err)
	}

	settingsStore := database.NewSettingsStore(database.DB)
	st, err := settingsStore.Snapshot()
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}

	runtime, err := services.NewDockerRuntime(services.RuntimeConfig{
		BaseURL: st.Get("docker_base_url"),
	})
	if err != nil {
		log.Fatalf("Failed to connect to Docker daemon: %v", err)
	}

	var locker services.Locker
	if st.Get("container_lock_backend") == "redis" {
		database.InitRedis()
		locker = database.NewRedisLocker(database.RDB)
	} else {
		locker = services.NewKeyMutex()
	}

	assignmentStore := database.NewAssignmentStore(database.DB)
	challengeStore := database.NewChallengeStore(database.DB)
	manager := services.NewManager(assignmentStore, challengeStore, settingsStore, runtime, locker)

	reaper := services.NewReaper(assignmentStore, runtime, st.ReaperInterval())
	reaper.Start()

	containerCtl := controllers.NewContainerController(manager, settingsStore)
	r := routes.SetupRouter(containerCtl)

	addr := os.Getenv("CTFBOX_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		log.Printf("Starting server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := reaper.Stop(ctx); err != nil {
		log.Printf("Reaper shutdown error: %v", err)
	}
	log.Println("Server exited.")
}
