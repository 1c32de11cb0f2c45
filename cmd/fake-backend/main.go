// Package main runs the development backend: agent CRUD, knowledge-base
// routes and a scripted streaming chat endpoint.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ZahurZaidi/Bawaal/internal/devserver"
)

func main() {
	addr := flag.String("addr", ":8000", "Listen address")
	dsn := flag.String("db", "file:bawaal-dev.db?cache=shared&mode=rwc", "SQLite DSN")
	token := flag.String("token", "", "Required chat token (empty accepts any non-empty token)")
	delay := flag.Duration("delay", 30*time.Millisecond, "Delay between streamed tokens")
	flag.Parse()

	store, err := devserver.NewStore(*dsn)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	server := devserver.New(store,
		devserver.WithToken(*token),
		devserver.WithTokenDelay(*delay))

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	server.Routes(e)

	go func() {
		if err := e.Start(*addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Fake backend listening on %s", *addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown gracefully: %v", err)
	}

	log.Println("Fake backend stopped")
}
