package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aviary-ai/aviary/internal/storage"
)

type fakeSender struct {
	msgs []storage.Message
	err  error
	got  string
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) ([]storage.Message, error) {
	f.got = text
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs, nil
}

type fakeIngestor struct {
	calls int
	err   error
}

func (f *fakeIngestor) Process(_ context.Context, _ int64, _ string, _ string) error {
	f.calls++
	return f.err
}

func newTestServer(t *testing.T) (*httptest.Server, Deps) {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { s.Close() })

	deps := Deps{
		Store:     s,
		Sender:    &fakeSender{},
		Ingestor:  &fakeIngestor{},
		UploadDir: t.TempDir(),
	}
	srv := httptest.NewServer(NewHandler(deps))
	t.Cleanup(srv.Close)
	return srv, deps
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	body := decodeBody(t, resp)
	if body["status"] != "healthy" {
		t.Errorf("got %v", body)
	}
}

func TestAgentLifecycle(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/agents", map[string]any{
		"name": "support", "description": "support agent", "is_parent": true,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != true {
		t.Fatalf("create response: %v", body)
	}
	agent := body["agent"].(map[string]any)
	id := int64(agent["id"].(float64))

	resp, err := http.Get(fmt.Sprintf("%s/api/agents/%d", srv.URL, id))
	if err != nil {
		t.Fatalf("GET agent: %v", err)
	}
	body = decodeBody(t, resp)
	if body["agent"].(map[string]any)["name"] != "support" {
		t.Errorf("get response: %v", body)
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/agents/%d", srv.URL, id), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE agent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d", resp.StatusCode)
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/agents/%d", srv.URL, id))
	if err != nil {
		t.Fatalf("GET deleted agent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateAgentValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/agents", map[string]any{"description": "nameless"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing name status = %d, want 400", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/agents", map[string]any{"name": "orphan", "parent_id": 999})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing parent status = %d, want 404", resp.StatusCode)
	}
}

// A partial update leaves fields absent from the body untouched; in
// particular renaming a parent agent must not clear is_parent.
func TestUpdateAgentPartial(t *testing.T) {
	srv, deps := newTestServer(t)

	agent, err := deps.Store.CreateAgent(storage.Agent{Name: "Boss", Description: "Oversees the others.", IsParent: true})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	body, _ := json.Marshal(map[string]any{"name": "Renamed"})
	req, _ := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/agents/%d", srv.URL, agent.ID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT agent: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status = %d", resp.StatusCode)
	}

	got, err := deps.Store.GetAgent(agent.ID)
	if err != nil {
		t.Fatalf("GetAgent: %v", err)
	}
	if got.Name != "Renamed" {
		t.Errorf("name = %q, want %q", got.Name, "Renamed")
	}
	if !got.IsParent {
		t.Error("is_parent cleared by a name-only update")
	}
	if got.Description != "Oversees the others." {
		t.Errorf("description changed: %q", got.Description)
	}
}

func TestCreateChatSeedsSystemMessage(t *testing.T) {
	srv, deps := newTestServer(t)

	agent, err := deps.Store.CreateAgent(storage.Agent{Name: "Ava", Description: "Helps out."})
	if err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}

	resp := postJSON(t, srv.URL+"/api/chats", map[string]any{"agent_id": agent.ID})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create chat status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	chat := body["chat"].(map[string]any)
	if chat["title"] != "Chat with Ava" {
		t.Errorf("default title = %v", chat["title"])
	}

	msgs, err := deps.Store.Messages(int64(chat["id"].(float64)))
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Role != storage.RoleSystem {
		t.Fatalf("got %d messages, want one system message", len(msgs))
	}
	if !strings.Contains(msgs[0].Content, "You are an AI assistant named Ava.") {
		t.Errorf("system message = %q", msgs[0].Content)
	}
}

func TestSendMessageEndpoint(t *testing.T) {
	srv, deps := newTestServer(t)

	agent, _ := deps.Store.CreateAgent(storage.Agent{Name: "a"})
	chat, _ := deps.Store.CreateChat(storage.Chat{AgentID: agent.ID, Title: "t"})

	sender := deps.Sender.(*fakeSender)
	sender.msgs = []storage.Message{
		{ChatID: chat.ID, Role: storage.RoleUser, Content: "hi"},
		{ChatID: chat.ID, Role: storage.RoleAssistant, Content: "hello"},
	}

	resp := postJSON(t, fmt.Sprintf("%s/api/chats/%d/message", srv.URL, chat.ID), map[string]any{"message": "hi"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if sender.got != "hi" {
		t.Errorf("sender received %q", sender.got)
	}
	if msgs := body["messages"].([]any); len(msgs) != 2 {
		t.Errorf("got %d messages", len(msgs))
	}

	// Empty message rejected before the orchestrator runs.
	resp = postJSON(t, fmt.Sprintf("%s/api/chats/%d/message", srv.URL, chat.ID), map[string]any{"message": ""})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty message status = %d, want 400", resp.StatusCode)
	}
}

func TestSendMessageUnknownChat(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.Sender.(*fakeSender).err = fmt.Errorf("chat 5: %w", storage.ErrNotFound)

	resp := postJSON(t, srv.URL+"/api/chats/5/message", map[string]any{"message": "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	msg := body["error"].(map[string]any)["message"].(string)
	if !strings.Contains(msg, "chat 5") {
		t.Errorf("error message = %q, want the missing record named", msg)
	}
}

// A chat whose agent row is gone reports the agent, not the chat, as
// missing.
func TestSendMessageMissingAgentNamed(t *testing.T) {
	srv, deps := newTestServer(t)
	deps.Sender.(*fakeSender).err = fmt.Errorf("agent 7 for chat 3: %w", storage.ErrNotFound)

	resp := postJSON(t, srv.URL+"/api/chats/3/message", map[string]any{"message": "hi"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	msg := body["error"].(map[string]any)["message"].(string)
	if !strings.Contains(msg, "agent 7") {
		t.Errorf("error message = %q, want the missing agent named", msg)
	}
}

func TestDeleteChatWithChildrenRejected(t *testing.T) {
	srv, deps := newTestServer(t)

	agent, _ := deps.Store.CreateAgent(storage.Agent{Name: "a"})
	parent, _ := deps.Store.CreateChat(storage.Chat{AgentID: agent.ID, Title: "p"})
	if _, err := deps.Store.CreateChat(storage.Chat{AgentID: agent.ID, ParentChatID: &parent.ID, Title: "c"}); err != nil {
		t.Fatalf("CreateChat child: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/chats/%d", srv.URL, parent.ID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE chat: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	if _, err := deps.Store.GetChat(parent.ID); err != nil {
		t.Errorf("parent chat was deleted: %v", err)
	}
}

func uploadRequest(t *testing.T, url string, agentID int64, filename, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("agent_id", fmt.Sprint(agentID)); err != nil {
		t.Fatalf("writing field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("creating form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("writing file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(url+"/api/documents", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatalf("POST /api/documents: %v", err)
	}
	return resp
}

func TestUploadDocument(t *testing.T) {
	srv, deps := newTestServer(t)
	agent, _ := deps.Store.CreateAgent(storage.Agent{Name: "a"})

	resp := uploadRequest(t, srv.URL, agent.ID, "notes.txt", "some notes")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	doc := body["document"].(map[string]any)
	if doc["filename"] != "notes.txt" || doc["file_type"] != "txt" {
		t.Errorf("document = %v", doc)
	}
	if int64(doc["file_size"].(float64)) != int64(len("some notes")) {
		t.Errorf("file_size = %v", doc["file_size"])
	}
	if deps.Ingestor.(*fakeIngestor).calls != 1 {
		t.Errorf("ingestor called %d times, want 1", deps.Ingestor.(*fakeIngestor).calls)
	}
}

func TestUploadDocumentRejectsUnsupportedType(t *testing.T) {
	srv, deps := newTestServer(t)
	agent, _ := deps.Store.CreateAgent(storage.Agent{Name: "a"})

	resp := uploadRequest(t, srv.URL, agent.ID, "malware.exe", "MZ")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if deps.Ingestor.(*fakeIngestor).calls != 0 {
		t.Error("ingestor ran for a rejected upload")
	}

	docs, err := deps.Store.ListDocuments(agent.ID)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("document row created for rejected upload")
	}
}

func TestUploadDocumentSurvivesIngestFailure(t *testing.T) {
	srv, deps := newTestServer(t)
	agent, _ := deps.Store.CreateAgent(storage.Agent{Name: "a"})
	deps.Ingestor.(*fakeIngestor).err = errors.New("embedding provider down")

	resp := uploadRequest(t, srv.URL, agent.ID, "notes.txt", "text")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d, want 200 despite ingest failure", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["success"] != true {
		t.Errorf("response: %v", body)
	}

	docs, err := deps.Store.ListDocuments(agent.ID)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("got %d documents, want the unprocessed upload", len(docs))
	}
}

func TestTaskStatusUpdate(t *testing.T) {
	srv, deps := newTestServer(t)
	agent, _ := deps.Store.CreateAgent(storage.Agent{Name: "a"})
	task, err := deps.Store.CreateTask(storage.Task{AgentID: agent.ID, Title: "do it"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	req, _ := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/tasks/%d/status", srv.URL, task.ID),
		strings.NewReader(`{"status":"completed"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT status: %v", err)
	}
	body := decodeBody(t, resp)
	if body["task"].(map[string]any)["status"] != "completed" {
		t.Errorf("task = %v", body["task"])
	}

	req, _ = http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/tasks/%d/status", srv.URL, task.ID),
		strings.NewReader(`{"status":"bogus"}`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT bogus status: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bogus status = %d, want 400", resp.StatusCode)
	}
}

func TestLinkedChats(t *testing.T) {
	srv, deps := newTestServer(t)
	agent, _ := deps.Store.CreateAgent(storage.Agent{Name: "a"})
	parent, _ := deps.Store.CreateChat(storage.Chat{AgentID: agent.ID, Title: "p"})
	child, _ := deps.Store.CreateChat(storage.Chat{AgentID: agent.ID, ParentChatID: &parent.ID, Title: "c"})

	resp, err := http.Get(fmt.Sprintf("%s/api/chats/%d/linked-chats", srv.URL, child.ID))
	if err != nil {
		t.Fatalf("GET linked-chats: %v", err)
	}
	body := decodeBody(t, resp)
	if body["parentChat"].(map[string]any)["id"].(float64) != float64(parent.ID) {
		t.Errorf("parentChat = %v", body["parentChat"])
	}

	resp, err = http.Get(fmt.Sprintf("%s/api/chats/%d/linked-chats", srv.URL, parent.ID))
	if err != nil {
		t.Fatalf("GET linked-chats for parent: %v", err)
	}
	body = decodeBody(t, resp)
	if kids := body["childChats"].([]any); len(kids) != 1 {
		t.Errorf("childChats = %v", kids)
	}
}
