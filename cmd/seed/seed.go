package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/openaicompat/bedrock-gateway/internal/store/model"
	"github.com/openaicompat/bedrock-gateway/internal/store/sqlite"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func main() {
	dsn := flag.String("dsn", "file:gateway.db?_busy_timeout=5000&_journal_mode=WAL", "SQLite DSN of the store to provision")
	userID := flag.String("user", "default", "user id the issued key belongs to")
	name := flag.String("name", "seed key", "human-readable label for the key")
	rateLimit := flag.Int("rate-limit", 0, "per-key request budget; 0 falls back to the server-wide default")
	flag.Parse()

	logger := zap.NewNop()
	keyStore, err := sqlite.New(*dsn, logger)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer keyStore.Close()

	ctx := context.Background()
	if err := keyStore.Ready(ctx); err != nil {
		log.Fatalf("store not ready: %v", err)
	}

	rawKey := "sk-" + randomBase62(32)
	rec := &model.APIKeyRecord{
		APIKey:    rawKey,
		UserID:    *userID,
		Name:      *name,
		IsActive:  true,
		RateLimit: *rateLimit,
		CreatedAt: time.Now(),
	}

	if err := sqlite.EncodeMetadata(rec, map[string]string{"issued_by": "seed"}); err != nil {
		log.Fatalf("failed to encode metadata: %v", err)
	}

	if err := keyStore.APIKeys().Put(ctx, rec); err != nil {
		log.Fatalf("failed to write key: %v", err)
	}

	fmt.Printf("Issued API key for user %q:\n", *userID)
	fmt.Printf("  %s\n", rawKey)
	fmt.Printf("Use it as: Authorization: Bearer %s\n", rawKey)
}

func randomBase62(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(base62Alphabet))))
		if err != nil {
			log.Fatalf("failed to read random bytes: %v", err)
		}
		buf[i] = base62Alphabet[idx.Int64()]
	}
	return string(buf)
}
