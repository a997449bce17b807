package main

import (
	"lms/pkg/circuitbreaker"
	"lms/pkg/circulation"
	"lms/pkg/database"
	"lms/pkg/store"
	"log"
	"os"
	"strconv"
	"time"
)

func main() {
	log.Println("Starting library circulation service...")

	db, err := database.Open(database.ConfigFromEnv())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	if err := database.Ping(db); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}
	log.Println("Database ping successful")

	maxFailures, err := strconv.Atoi(getEnv("BREAKER_MAX_FAILURES", "5"))
	if err != nil {
		log.Fatalf("Invalid BREAKER_MAX_FAILURES: %v", err)
	}
	timeout, err := time.ParseDuration(getEnv("BREAKER_TIMEOUT", "30s"))
	if err != nil {
		log.Fatalf("Invalid BREAKER_TIMEOUT: %v", err)
	}
	breaker := circuitbreaker.NewCircuitBreaker(maxFailures, timeout)

	srv := &server{
		lib: circulation.New(store.New(db, breaker)),
		db:  db,
	}

	port := getEnv("HTTP_PORT", "8060")
	log.Printf("Library circulation service starting on :%s", port)
	if err := srv.router().Run(":" + port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
