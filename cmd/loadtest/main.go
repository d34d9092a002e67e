package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // ⚠️ Start small. 50 pairs = 100 users.
	MsgCount  = 20 // Messages per user
)

type AuthResponse struct {
	Token string `json:"access_token"`
	User  struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

type ConversationResponse struct {
	ID string `json:"conversation_id"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// We will create pairs: User 0 talks to User 1, User 2 talks to User 3...
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	// 1. Register & Login
	tokenA, _ := authenticate(userA, pass)
	tokenB, idB := authenticate(userB, pass)

	if tokenA == "" || tokenB == "" {
		return // Failed auth
	}

	// 2. User A starts conversation with User B
	convID := createConversation(tokenA, idB)
	if convID == "" {
		return
	}

	// 3. Start WebSocket Spam (Both sides)
	var wsWg sync.WaitGroup
	wsWg.Add(2)

	go spamChat(&wsWg, tokenA, convID, userA)
	go spamChat(&wsWg, tokenB, convID, userB)

	wsWg.Wait()
}

// authenticate registers (ignores error if exists) and logs in
func authenticate(name, password string) (string, string) {
	email := name + "@loadtest.local"

	// Register (Ignore error, might already exist)
	postJSON("/register", map[string]string{
		"name": name, "email": email, "password": password, "role": "docente",
	})

	// Login
	resp, err := postJSON("/login", map[string]string{"email": email, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", name, err)
		return "", ""
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token, data.User.ID
}

func createConversation(token, recipientID string) string {
	body, _ := json.Marshal(map[string]string{"recipient_id": recipientID})
	req, _ := http.NewRequest("POST", BaseURL+"/api/conversations", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != 200 {
		log.Printf("❌ Create Chat Failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	var data ConversationResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.ID
}

func spamChat(wg *sync.WaitGroup, token, convID, name string) {
	defer wg.Done()

	// Connect WS
	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", name, err)
		return
	}
	defer conn.Close()

	// Select the thread once, then spam
	conn.WriteJSON(map[string]string{"type": "select", "conversation_id": convID})

	for i := 0; i < MsgCount; i++ {
		msg := map[string]any{
			"type":            "send",
			"conversation_id": convID,
			"text":            fmt.Sprintf("LoadTest Msg %d from %s", i, name),
			"priority":        "normal",
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", name, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", name, MsgCount)
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
