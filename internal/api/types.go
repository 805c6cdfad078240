package api

import "github.com/feedlens/relay/internal/feed"

// Profile is the authenticated user's account record.
type Profile struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at"`
}

// User is one entry in an authorization list.
type User struct {
	Username string `json:"username"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type deleteRequest struct {
	Password string `json:"password"`
}

type shareRequest struct {
	ShareWith string `json:"share_with"`
}

type saveCookiesRequest struct {
	Cookies map[string]string `json:"cookies"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type feedResponse struct {
	Tweets     []feed.Tweet `json:"tweets"`
	SourceUser string       `json:"source_user"`
	Count      int          `json:"count"`
}
