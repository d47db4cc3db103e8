package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/localfirst/syncd/seed"
	"github.com/localfirst/syncd/server"
	"github.com/localfirst/syncd/store"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	dsn := server.GetConfig().DatabaseDSN()
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "seed failed: set SYNCD_DATABASE__DSN")
		os.Exit(1)
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: open db: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := seed.Run(ctx, store.NewUserStore(db), seed.OptionsFromEnv()); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("seed completed successfully")
}
