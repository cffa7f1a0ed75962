package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"time"
)

// account is a registered load test user with its auth token.
type account struct {
	UserID string
	Token  string
}

// httpClient is shared by all registrations; the auth cookie is captured
// per-response, so no jar is needed.
var httpClient = &http.Client{Timeout: 15 * time.Second}

// registerUser creates a throwaway account through the REST API and returns
// its id and user-token cookie value. The avatar is a generated 1x1 PNG.
func registerUser(apiBase, name string) (account, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	userName := fmt.Sprintf("%s-%s", name, randHex(4))
	_ = form.WriteField("name", name)
	_ = form.WriteField("userName", userName)
	_ = form.WriteField("password", "loadtest-password")
	_ = form.WriteField("bio", "load test user")

	avatar, err := form.CreateFormFile("avatar", "avatar.png")
	if err != nil {
		return account{}, fmt.Errorf("form: %w", err)
	}
	if err := png.Encode(avatar, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		return account{}, fmt.Errorf("avatar: %w", err)
	}
	if err := form.Close(); err != nil {
		return account{}, fmt.Errorf("form: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, apiBase+"/api/v1/user/register", &body)
	if err != nil {
		return account{}, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := httpClient.Do(req)
	if err != nil {
		return account{}, fmt.Errorf("register: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return account{}, fmt.Errorf("register: unexpected status %d", resp.StatusCode)
	}

	var parsed struct {
		User struct {
			ID string `json:"_id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return account{}, fmt.Errorf("register: decode: %w", err)
	}

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == "user-token" {
			token = c.Value
		}
	}
	if token == "" || parsed.User.ID == "" {
		return account{}, fmt.Errorf("register: response missing token or user id")
	}

	return account{UserID: parsed.User.ID, Token: token}, nil
}

// randHex returns n random bytes hex-encoded.
func randHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
