package main

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"rydin-backend/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}

	tokenString, err := utils.GenerateAdminJWT()
	if err != nil {
		log.Fatalf("Error generating admin token: %v", err)
	}

	fmt.Printf("Generated admin token: %s\n", tokenString)
}
