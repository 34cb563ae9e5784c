package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"fossawork-backend/internal/config"
	"fossawork-backend/internal/store"
	"fossawork-backend/models"
	"fossawork-backend/utils"
)

// Account provisioning tool. There is no self-service registration
// endpoint; operators create accounts with this command.
func main() {
	username := flag.String("username", "", "login username (required)")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email address")
	flag.Parse()

	if *username == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		log.Fatal("Failed to read password:", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if len(password) < 8 {
		log.Fatal("Password must be at least 8 characters")
	}

	hash, err := utils.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		log.Fatal("Failed to hash password:", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer st.Close()

	id, err := st.CreateUser(context.Background(), &models.User{
		Username:     *username,
		Name:         *name,
		Email:        *email,
		PasswordHash: hash,
	})
	if err != nil {
		log.Fatal("Failed to create user:", err)
	}

	fmt.Printf("created user %q (id %d)\n", *username, id)
}
