package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"proptalk/internal/auth"
	"proptalk/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Println("Usage: token <userId>")
		os.Exit(1)
	}

	cfg, err := config.Load(false)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	svc, err := auth.NewAuthService(context.Background(), auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	})
	if err != nil {
		fmt.Printf("Error creating auth service: %v\n", err)
		os.Exit(1)
	}

	token, _, err := svc.IssueToken(os.Args[1])
	if err != nil {
		fmt.Printf("Error issuing token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}
