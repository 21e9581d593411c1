package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	serverURL    string
	clientID     string
	clientSecret string
	scopes       string
)

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	serverURL = getEnv("SERVER_URL", "http://localhost:8080")
	clientID = getEnv("CLIENT_ID", "")
	clientSecret = getEnv("CLIENT_SECRET", "")
	scopes = getEnv("SCOPES", "")

	if clientID == "" || clientSecret == "" {
		fmt.Println("Error: CLIENT_ID and CLIENT_SECRET must be set in .env or the environment.")
		fmt.Println("Register an application with: authcore app create -name demo")
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func main() {
	fmt.Printf("=== OAuth Client Credentials Demo ===\n")

	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     serverURL + "/auth/token",
		Scopes:       strings.Fields(scopes),
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx := context.Background()

	// Step 1: Exchange the client credentials for a token
	fmt.Println("Step 1: Requesting access token...")
	token, err := config.Token(ctx)
	if err != nil {
		fmt.Printf("Error requesting token: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\n========================================\n")
	fmt.Printf("Access Token: %s...\n", token.AccessToken[:min(16, len(token.AccessToken))])
	fmt.Printf("Token Type: %s\n", token.Type())
	fmt.Printf("Expires In: %s\n", time.Until(token.Expiry).Round(time.Second))
	fmt.Printf("Scope: %v\n", token.Extra("scope"))
	fmt.Printf("========================================\n")

	// Step 2: Call a protected endpoint; the client attaches the bearer token
	fmt.Println("\nStep 2: Calling /api/v1/tokeninfo...")
	client := config.Client(ctx)
	if err := tokenInfo(client); err != nil {
		fmt.Printf("Token verification failed: %v\n", err)
		os.Exit(1)
	}

	// Step 3: Revoke the token; the server answers 200 either way
	fmt.Println("\nStep 3: Revoking the token...")
	if err := revoke(token.AccessToken); err != nil {
		fmt.Printf("Revocation failed: %v\n", err)
		os.Exit(1)
	}

	// Step 4: The revoked token no longer authenticates
	fmt.Println("\nStep 4: Calling /api/v1/tokeninfo with the revoked token...")
	revoked := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	if err := tokenInfo(revoked); err != nil {
		fmt.Printf("Rejected as expected: %v\n", err)
	} else {
		fmt.Println("Unexpected: revoked token still accepted")
		os.Exit(1)
	}
}

func tokenInfo(client *http.Client) error {
	resp, err := client.Get(serverURL + "/api/v1/tokeninfo")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		_ = json.Unmarshal(body, &errResp)
		return fmt.Errorf("%s: %s", errResp.Error, errResp.Message)
	}

	fmt.Printf("Token Info: %s\n", string(body))
	return nil
}

func revoke(accessToken string) error {
	form := url.Values{"token": {accessToken}, "token_type_hint": {"access_token"}}
	req, err := http.NewRequest(http.MethodPost, serverURL+"/auth/revoke", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(clientID), url.QueryEscape(clientSecret))

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	fmt.Println("Token revoked")
	return nil
}
