package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/screener/internal/blob"
	"github.com/pavelanni/screener/internal/exam"
	"github.com/pavelanni/screener/internal/model"
	"github.com/pavelanni/screener/internal/notify"
	"github.com/pavelanni/screener/internal/scorer"
	"github.com/pavelanni/screener/internal/store"
)

type testEnv struct {
	server *httptest.Server
	store  *store.Store
	token  string
}

func newTestEnv(t *testing.T, sc scorer.Scorer) *testEnv {
	t.Helper()

	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	blobs, err := blob.New(t.TempDir())
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}

	if sc == nil {
		sc = scorer.Func(func(ctx context.Context, prompt string, content scorer.Content) (string, error) {
			return "Result: Human\nReason: test", nil
		})
	}

	svc := exam.New(st, sc, notify.LogNotifier{})
	h := New(svc, st, blobs)

	r := chi.NewRouter()
	h.Routes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	userID, err := st.CreateAdminUser(model.AdminUser{Username: "admin", PasswordHash: string(hash)})
	if err != nil {
		t.Fatalf("create admin user: %v", err)
	}
	token, err := st.CreateAuthSession(userID)
	if err != nil {
		t.Fatalf("create auth session: %v", err)
	}

	return &testEnv{server: server, store: st, token: token}
}

func (e *testEnv) postJSON(t *testing.T, path string, body any, admin bool) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	return e.do(t, req)
}

func (e *testEnv) get(t *testing.T, path string, admin bool) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	return e.do(t, req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decode response %q: %v", raw, err)
		}
	}
	return resp, decoded
}

func (e *testEnv) createCandidate(t *testing.T, code string, start, end time.Time) int64 {
	t.Helper()
	id, err := e.store.CreateCandidate(code+"@example.com", code, start, end)
	if err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	return id
}

func (e *testEnv) inWindow(t *testing.T, code string) int64 {
	t.Helper()
	now := time.Now()
	return e.createCandidate(t, code, now.Add(-time.Hour), now.Add(time.Hour))
}

func TestHome(t *testing.T) {
	env := newTestEnv(t, nil)
	resp, body := env.get(t, "/", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if body["status"] != "Backend running successfully" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestValidatePin(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.inWindow(t, "PIN001")

	t.Run("valid code", func(t *testing.T) {
		resp, body := env.postJSON(t, "/validate-pin", map[string]string{"pin": "PIN001"}, false)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["success"] != true {
			t.Fatalf("expected success, got %v", body)
		}
		if int64(body["user_id"].(float64)) != id {
			t.Errorf("expected user_id %d, got %v", id, body["user_id"])
		}
		if body["email"] != "PIN001@example.com" {
			t.Errorf("unexpected email %v", body["email"])
		}
		for _, field := range []string{"test_start", "test_end"} {
			s, ok := body[field].(string)
			if !ok {
				t.Fatalf("missing %s in %v", field, body)
			}
			if _, err := time.Parse(time.RFC3339, s); err != nil {
				t.Errorf("%s is not RFC3339: %q", field, s)
			}
		}
	})

	t.Run("unknown code", func(t *testing.T) {
		resp, body := env.postJSON(t, "/validate-pin", map[string]string{"pin": "NOPE99"}, false)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["success"] != false || body["message"] != "Invalid access code" {
			t.Errorf("unexpected body %v", body)
		}
	})

	t.Run("expired window", func(t *testing.T) {
		now := time.Now()
		env.createCandidate(t, "PIN002", now.Add(-2*time.Hour), now.Add(-time.Minute))
		resp, body := env.postJSON(t, "/validate-pin", map[string]string{"pin": "PIN002"}, false)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["success"] != false || body["message"] != model.ReasonTimeOver {
			t.Errorf("unexpected body %v", body)
		}
	})

	t.Run("empty pin", func(t *testing.T) {
		resp, body := env.postJSON(t, "/validate-pin", map[string]string{}, false)
		if resp.StatusCode != http.StatusOK || body["success"] != false {
			t.Errorf("unexpected response %d %v", resp.StatusCode, body)
		}
	})
}

func TestSubmitTextAnswer(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.inWindow(t, "TXT001")

	resp, body := env.postJSON(t, "/submit-text-answer", map[string]any{
		"user_id":  id,
		"question": "Why us?",
		"answer":   "Because.",
	}, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["ai_result"] != "Result: Human\nReason: test" {
		t.Errorf("unexpected ai_result %v", body["ai_result"])
	}

	t.Run("duplicate", func(t *testing.T) {
		resp, body := env.postJSON(t, "/submit-text-answer", map[string]any{
			"user_id": id, "question": "Why us?", "answer": "Again.",
		}, false)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", resp.StatusCode)
		}
		if body["error"] != "Text already submitted" {
			t.Errorf("unexpected error %v", body["error"])
		}
	})

	t.Run("unknown candidate", func(t *testing.T) {
		resp, _ := env.postJSON(t, "/submit-text-answer", map[string]any{
			"user_id": 9999, "answer": "hi",
		}, false)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	t.Run("missing answer", func(t *testing.T) {
		resp, _ := env.postJSON(t, "/submit-text-answer", map[string]any{"user_id": id}, false)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("string user_id accepted", func(t *testing.T) {
		id2 := env.inWindow(t, "TXT002")
		resp, _ := env.postJSON(t, "/submit-text-answer", map[string]any{
			"user_id": fmt.Sprint(id2), "question": "q", "answer": "a",
		}, false)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})
}

func TestSubmitTextScorerDown(t *testing.T) {
	down := scorer.Func(func(ctx context.Context, prompt string, content scorer.Content) (string, error) {
		return "", errors.New("connection refused")
	})
	env := newTestEnv(t, down)
	id := env.inWindow(t, "DOWN01")

	resp, body := env.postJSON(t, "/submit-text-answer", map[string]any{
		"user_id": id, "answer": "hello",
	}, false)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if body["retryable"] != true {
		t.Errorf("expected retryable flag, got %v", body)
	}
}

func multipartBody(t *testing.T, userID int64, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("user_id", fmt.Sprint(userID)); err != nil {
		t.Fatalf("write field: %v", err)
	}
	if err := mw.WriteField("question", "Upload your sample"); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSubmitMediaAnswer(t *testing.T) {
	var gotContent scorer.Content
	sc := scorer.Func(func(ctx context.Context, prompt string, content scorer.Content) (string, error) {
		gotContent = content
		return "Result: Real\nReason: test", nil
	})
	env := newTestEnv(t, sc)
	id := env.inWindow(t, "MED001")

	body, contentType := multipartBody(t, id, "selfie.png", []byte{0x89, 0x50, 0x4e, 0x47})
	resp, err := http.Post(env.server.URL+"/submit-image-answer", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}
	var decoded map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["ai_result"] != "Result: Real\nReason: test" {
		t.Errorf("unexpected ai_result %q", decoded["ai_result"])
	}
	if !bytes.Equal(gotContent.Data, []byte{0x89, 0x50, 0x4e, 0x47}) {
		t.Error("scorer did not receive the uploaded bytes")
	}

	// The ledger records the blob key, not the raw client filename.
	subs, err := env.store.ListSubmissions(id)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(subs))
	}
	if subs[0].Answer == "selfie.png" || !strings.HasSuffix(subs[0].Answer, "_selfie.png") {
		t.Errorf("unexpected ledger answer %q", subs[0].Answer)
	}

	t.Run("missing file", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		mw.WriteField("user_id", fmt.Sprint(id))
		mw.Close()
		resp, err := http.Post(env.server.URL+"/submit-audio-answer", mw.FormDataContentType(), &buf)
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestMarkSubmitted(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.inWindow(t, "MRK001")

	resp, body := env.postJSON(t, "/mark-submitted", map[string]any{"user_id": id}, false)
	if resp.StatusCode != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
	}

	// Locked: further submissions are forbidden.
	resp, body = env.postJSON(t, "/submit-text-answer", map[string]any{
		"user_id": id, "answer": "late",
	}, false)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if body["error"] != model.ReasonFinalSubmitted {
		t.Errorf("unexpected error %v", body["error"])
	}

	// And so is finalizing again.
	resp, _ = env.postJSON(t, "/mark-submitted", map[string]any{"user_id": id}, false)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %d", resp.StatusCode)
	}
}

func TestSubmissionStatus(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.inWindow(t, "STA001")

	env.postJSON(t, "/submit-text-answer", map[string]any{"user_id": id, "answer": "a"}, false)

	resp, body := env.get(t, fmt.Sprintf("/submission-status/%d", id), false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	want := map[string]bool{"text": true, "image": false, "audio": false, "video": false, "final": false}
	for field, expect := range want {
		if body[field] != expect {
			t.Errorf("%s = %v, want %v", field, body[field], expect)
		}
	}

	resp, _ = env.get(t, "/submission-status/9999", false)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestAdminLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("good credentials", func(t *testing.T) {
		resp, body := env.postJSON(t, "/admin/login", map[string]string{
			"username": "admin", "password": "secret",
		}, false)
		if resp.StatusCode != http.StatusOK || body["success"] != true {
			t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
		}
		token, _ := body["token"].(string)
		if token == "" {
			t.Fatal("expected a session token")
		}

		var cookie string
		for _, c := range resp.Cookies() {
			if c.Name == sessionCookieName {
				cookie = c.Value
			}
		}
		if cookie != token {
			t.Error("session cookie does not match the token")
		}
	})

	t.Run("bad password", func(t *testing.T) {
		resp, body := env.postJSON(t, "/admin/login", map[string]string{
			"username": "admin", "password": "wrong",
		}, false)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", resp.StatusCode)
		}
		if body["message"] != "Invalid admin credentials" {
			t.Errorf("unexpected body %v", body)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		resp, _ := env.postJSON(t, "/admin/login", map[string]string{
			"username": "ghost", "password": "secret",
		}, false)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", resp.StatusCode)
		}
	})
}

func TestAdminRoutesRequireAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	paths := []struct {
		method, path string
	}{
		{http.MethodPost, "/generate-invite"},
		{http.MethodGet, "/admin/all-results"},
		{http.MethodGet, "/admin/final-verdict/1"},
		{http.MethodGet, "/admin/media/somekey"},
	}
	for _, p := range paths {
		req, _ := http.NewRequest(p.method, env.server.URL+p.path, strings.NewReader("{}"))
		resp, _ := env.do(t, req)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", p.method, p.path, resp.StatusCode)
		}
	}

	// A garbage token is also rejected.
	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/admin/all-results", nil)
	req.Header.Set("Authorization", "Bearer deadbeef")
	resp, _ := env.do(t, req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad token, got %d", resp.StatusCode)
	}
}

func TestGenerateInvite(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Now()

	resp, body := env.postJSON(t, "/generate-invite", map[string]string{
		"email":      "carol@example.com",
		"start_time": now.Format(time.RFC3339),
		"end_time":   now.Add(time.Hour).Format(time.RFC3339),
	}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["message"] != "Invite sent successfully" {
		t.Errorf("unexpected body %v", body)
	}

	t.Run("datetime-local layout", func(t *testing.T) {
		resp, _ := env.postJSON(t, "/generate-invite", map[string]string{
			"email":      "dave@example.com",
			"start_time": "2026-09-01T09:00",
			"end_time":   "2026-09-01T11:00",
		}, true)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("bad timestamp", func(t *testing.T) {
		resp, _ := env.postJSON(t, "/generate-invite", map[string]string{
			"email":      "erin@example.com",
			"start_time": "tomorrow",
			"end_time":   "later",
		}, true)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})

	t.Run("duplicate email", func(t *testing.T) {
		resp, _ := env.postJSON(t, "/generate-invite", map[string]string{
			"email":      "carol@example.com",
			"start_time": now.Format(time.RFC3339),
			"end_time":   now.Add(time.Hour).Format(time.RFC3339),
		}, true)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", resp.StatusCode)
		}
	})
}

func TestAllResultsAndFinalVerdict(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.inWindow(t, "RES001")
	env.postJSON(t, "/submit-text-answer", map[string]any{"user_id": id, "answer": "a"}, false)

	resp, body := env.get(t, "/admin/all-results", true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	report, ok := body[fmt.Sprint(id)].(map[string]any)
	if !ok {
		t.Fatalf("missing report for candidate %d in %v", id, body)
	}
	if report["email"] != "RES001@example.com" {
		t.Errorf("unexpected report %v", report)
	}
	answers, _ := report["answers"].([]any)
	if len(answers) != 1 {
		t.Errorf("expected 1 answer, got %v", report["answers"])
	}

	t.Run("final verdict", func(t *testing.T) {
		resp, body := env.get(t, fmt.Sprintf("/admin/final-verdict/%d", id), true)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["final_verdict"] == "" {
			t.Errorf("expected a verdict, got %v", body)
		}
	})

	t.Run("final verdict empty ledger", func(t *testing.T) {
		id2 := env.inWindow(t, "RES002")
		resp, body := env.get(t, fmt.Sprintf("/admin/final-verdict/%d", id2), true)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
		if body["final_verdict"] != exam.NoSubmissionsVerdict {
			t.Errorf("unexpected verdict %v", body["final_verdict"])
		}
	})

	t.Run("final verdict unknown candidate", func(t *testing.T) {
		resp, _ := env.get(t, "/admin/final-verdict/9999", true)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}

func TestAdminMedia(t *testing.T) {
	env := newTestEnv(t, nil)
	id := env.inWindow(t, "MDA001")

	body, contentType := multipartBody(t, id, "clip.wav", []byte("audio-bytes"))
	resp, err := http.Post(env.server.URL+"/submit-audio-answer", contentType, body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload failed with %d", resp.StatusCode)
	}

	subs, err := env.store.ListSubmissions(id)
	if err != nil || len(subs) != 1 {
		t.Fatalf("ListSubmissions: %v (%d rows)", err, len(subs))
	}
	key := subs[0].Answer

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/admin/media/"+key, nil)
	req.Header.Set("Authorization", "Bearer "+env.token)
	mediaResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get media: %v", err)
	}
	defer mediaResp.Body.Close()
	if mediaResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", mediaResp.StatusCode)
	}
	data, _ := io.ReadAll(mediaResp.Body)
	if string(data) != "audio-bytes" {
		t.Errorf("round-trip mismatch: %q", data)
	}

	t.Run("unknown key", func(t *testing.T) {
		resp, _ := env.get(t, "/admin/media/nope", true)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})
}
