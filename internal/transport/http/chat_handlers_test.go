package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tandemtalk/server/internal/proto"
	"github.com/tandemtalk/server/internal/store"
)

func doJSON(t *testing.T, env *testServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, env.ts.URL+path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, env.ts.URL+path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	env.ts.Config.Handler.ServeHTTP(resp, req)
	return resp
}

// makePartners links two users with an accepted partner request.
func makePartners(t *testing.T, env *testServer, userA, userB int64) {
	t.Helper()

	ctx := context.Background()
	if _, err := env.store.CreatePartnerRequest(ctx, userA, userB); err != nil {
		t.Fatalf("create partner request: %v", err)
	}
	if err := env.store.UpdatePartnerStatus(ctx, userA, userB, store.PartnerStatusAccepted); err != nil {
		t.Fatalf("accept partner request: %v", err)
	}
}

func TestCreateChatRequiresPartnerLink(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	_, aliceToken := registerUser(t, env, "alice")
	bobID, _ := registerUser(t, env, "bob")

	body := fmt.Sprintf(`{"partner_id":%d}`, bobID)

	resp := doJSON(t, env, http.MethodPost, "/api/chats", aliceToken, body)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without partner link, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateChatAndDedup(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, aliceToken := registerUser(t, env, "alice")
	bobID, bobToken := registerUser(t, env, "bob")
	makePartners(t, env, aliceID, bobID)

	body := fmt.Sprintf(`{"partner_id":%d}`, bobID)

	resp := doJSON(t, env, http.MethodPost, "/api/chats", aliceToken, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var created ChatResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal chat: %v", err)
	}
	if created.PartnerUserID != bobID {
		t.Fatalf("expected partner %d, got %d", bobID, created.PartnerUserID)
	}

	// Opening the same pair from the other side returns the existing chat.
	resp = doJSON(t, env, http.MethodPost, "/api/chats", bobToken, fmt.Sprintf(`{"partner_id":%d}`, aliceID))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 on dedup, got %d: %s", resp.Code, resp.Body.String())
	}

	var deduped ChatResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &deduped); err != nil {
		t.Fatalf("unmarshal deduped chat: %v", err)
	}
	if deduped.ID != created.ID {
		t.Fatalf("expected same chat %d, got %d", created.ID, deduped.ID)
	}

	// Unauthenticated request is refused.
	resp = doJSON(t, env, http.MethodPost, "/api/chats", "", body)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
}

func TestListMessagesPagination(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, aliceToken := registerUser(t, env, "alice")
	bobID, _ := registerUser(t, env, "bob")
	chat := createChat(t, env, aliceID, bobID)

	ctx := context.Background()
	var lastID int64
	for i := 0; i < 5; i++ {
		msg, err := env.store.InsertMessage(ctx, chat.ID, aliceID, fmt.Sprintf("msg %d", i))
		if err != nil {
			t.Fatalf("insert message: %v", err)
		}
		lastID = msg.ID
	}

	resp := doJSON(t, env, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages?limit=2", chat.ID), aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var page struct {
		Messages []struct {
			ID      int64  `json:"id"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal page: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(page.Messages))
	}
	if page.Messages[1].ID != lastID {
		t.Fatalf("expected newest message last, got %+v", page.Messages)
	}

	// Page backwards from the oldest id of the first page.
	before := page.Messages[0].ID
	resp = doJSON(t, env, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages?limit=10&before_id=%d", chat.ID, before), aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &page); err != nil {
		t.Fatalf("unmarshal second page: %v", err)
	}
	if len(page.Messages) != 3 {
		t.Fatalf("expected 3 older messages, got %d", len(page.Messages))
	}
	for _, m := range page.Messages {
		if m.ID >= before {
			t.Fatalf("message %d not older than %d", m.ID, before)
		}
	}
}

func TestListMessagesForbiddenForOutsider(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, _ := registerUser(t, env, "alice")
	bobID, _ := registerUser(t, env, "bob")
	_, eveToken := registerUser(t, env, "eve")
	chat := createChat(t, env, aliceID, bobID)

	resp := doJSON(t, env, http.MethodGet, fmt.Sprintf("/api/chats/%d/messages", chat.ID), eveToken, "")
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for outsider, got %d", resp.Code)
	}
}

func TestMarkRead(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, aliceToken := registerUser(t, env, "alice")
	bobID, _ := registerUser(t, env, "bob")
	chat := createChat(t, env, aliceID, bobID)

	ctx := context.Background()
	if _, err := env.store.InsertMessage(ctx, chat.ID, bobID, "unread"); err != nil {
		t.Fatalf("insert message: %v", err)
	}

	resp := doJSON(t, env, http.MethodPost, fmt.Sprintf("/api/chats/%d/read", chat.ID), aliceToken, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", resp.Code, resp.Body.String())
	}

	messages, err := env.store.ListMessages(ctx, chat.ID, 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(messages) != 1 || !messages[0].Read {
		t.Fatalf("expected the message to be marked read, got %+v", messages)
	}
}

func TestPartnerRequestFlow(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, aliceToken := registerUser(t, env, "alice")
	bobID, bobToken := registerUser(t, env, "bob")

	resp := doJSON(t, env, http.MethodPost, "/api/partners", aliceToken, fmt.Sprintf(`{"user_id":%d}`, bobID))
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	// Duplicate request conflicts.
	resp = doJSON(t, env, http.MethodPost, "/api/partners", aliceToken, fmt.Sprintf(`{"user_id":%d}`, bobID))
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", resp.Code)
	}

	// Only the recipient can accept; alice accepting her own request fails.
	resp = doJSON(t, env, http.MethodPost, fmt.Sprintf("/api/partners/%d/accept", bobID), aliceToken, "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when sender accepts, got %d", resp.Code)
	}

	resp = doJSON(t, env, http.MethodPost, fmt.Sprintf("/api/partners/%d/accept", aliceID), bobToken, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on accept, got %d: %s", resp.Code, resp.Body.String())
	}

	linked, err := env.store.ArePartners(context.Background(), aliceID, bobID)
	if err != nil {
		t.Fatalf("check partners: %v", err)
	}
	if !linked {
		t.Fatal("expected accepted partner link")
	}

	resp = doJSON(t, env, http.MethodGet, "/api/partners?status=accepted", aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var list struct {
		Partners []PartnerResponse `json:"partners"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal partners: %v", err)
	}
	if len(list.Partners) != 1 || list.Partners[0].Status != "accepted" {
		t.Fatalf("expected one accepted link, got %+v", list.Partners)
	}
}

func TestOnlineUsersEndpoint(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	aliceID, aliceToken := registerUser(t, env, "alice")

	ctx, closeCtx := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCtx()

	conn := dialWS(t, ctx, env, aliceToken)

	// The connection just registered; its presence snapshot confirms the hub
	// has processed the registration before we query.
	readUntilEvent(t, ctx, conn, proto.EventUsersOnline)

	resp := doJSON(t, env, http.MethodGet, "/api/users/online", aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var online struct {
		UserIDs []int64 `json:"user_ids"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &online); err != nil {
		t.Fatalf("unmarshal online: %v", err)
	}
	if len(online.UserIDs) != 1 || online.UserIDs[0] != aliceID {
		t.Fatalf("expected alice online, got %v", online.UserIDs)
	}
}

func TestSearchUsersEndpoint(t *testing.T) {
	env, cancel := startTestServer(t)
	defer cancel()

	_, aliceToken := registerUser(t, env, "alice")
	bobID, _ := registerUser(t, env, "bob")
	registerUser(t, env, "bonnie")

	resp := doJSON(t, env, http.MethodGet, "/api/users/search?q=bo", aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var result struct {
		Users []UserSummary `json:"users"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &result); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(result.Users) != 2 {
		t.Fatalf("expected 2 matches, got %+v", result.Users)
	}
	if result.Users[0].ID != bobID && result.Users[1].ID != bobID {
		t.Fatalf("expected bob in results, got %+v", result.Users)
	}

	resp = doJSON(t, env, http.MethodGet, "/api/users/search", aliceToken, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing query, got %d", resp.Code)
	}
}
