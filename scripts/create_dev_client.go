package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type OAuthClient struct {
	ID          string `gorm:"primaryKey"`
	Secret      string `gorm:"not null"`
	Name        string
	Domain      string
	Scopes      string
	GrantTypes  string
	RedirectURI string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (OAuthClient) TableName() string {
	return "oauth_clients"
}

func main() {
	// Parse command line flags
	dbPath := flag.String("db", "test.sqlite", "Path to the sqlite database file")
	redirectURI := flag.String("redirect-uri", "http://localhost:8080/callback", "Redirect URI registered for the client")
	flag.Parse()

	db, err := gorm.Open(sqlite.Open(*dbPath), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	clientID := "dev-client"
	clientSecret := "dev-secret-123"

	// Check if client already exists
	var existing OAuthClient
	if err := db.Where("id = ?", clientID).First(&existing).Error; err == nil {
		fmt.Println("Development client already exists!")
		fmt.Printf("Client ID: %s\n", clientID)
		fmt.Printf("Client Secret: %s\n", clientSecret)
		return
	}

	// Create new client
	hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal("Failed to hash secret:", err)
	}

	client := OAuthClient{
		ID:          clientID,
		Secret:      string(hash),
		Name:        "Development Client",
		Domain:      "http://localhost",
		Scopes:      "read write",
		GrantTypes:  "authorization_code refresh_token",
		RedirectURI: *redirectURI,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := db.Create(&client).Error; err != nil {
		log.Fatal("Failed to create client:", err)
	}

	fmt.Println("✓ Development external-auth client created!")
	fmt.Printf("Client ID: %s\n", clientID)
	fmt.Printf("Client Secret: %s\n", clientSecret)
	fmt.Printf("Redirect URI: %s\n", *redirectURI)
	fmt.Println("\nWalk the authorization-code flow against a local server:")
	fmt.Printf("curl 'http://localhost:8080/auth/authorize?client_id=%s&redirect_uri=%s&state=xyz'\n", clientID, *redirectURI)
	fmt.Printf("curl -X POST http://localhost:8080/auth/token \\\n")
	fmt.Printf("  -d 'grant_type=authorization_code' \\\n")
	fmt.Printf("  -d 'code=<code-from-redirect>' \\\n")
	fmt.Printf("  -d 'client_id=%s' \\\n", clientID)
	fmt.Printf("  -d 'client_secret=%s'\n", clientSecret)
}
