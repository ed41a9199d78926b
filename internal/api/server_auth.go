package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/dgnsrekt/psx_forecast/internal/auth"
)

func sessionCookie(token string, expires time.Time, secure bool) http.Cookie {
	c := http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if token == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	} else {
		c.Expires = expires
	}
	return c
}

func registerAuthHandlers(api huma.API, svc Service, secure bool) {
	type userOutput struct {
		Body auth.User
	}

	huma.Register(api, huma.Operation{OperationID: "register", Method: http.MethodPost, Path: "/api/v1/auth/register", Summary: "Register a new account", Tags: []string{"Auth"}, DefaultStatus: http.StatusCreated},
		func(ctx context.Context, input *struct {
			Body struct {
				Email    string `json:"email,omitempty" doc:"Account email" example:"trader@example.com"`
				Password string `json:"password,omitempty" doc:"Account password"`
				Phone    string `json:"phone,omitempty" doc:"Phone number" example:"03001234567"`
			}
		}) (*userOutput, error) {
			u, err := svc.Register(ctx, input.Body.Email, input.Body.Password, input.Body.Phone)
			if err != nil {
				return nil, mapErr(err)
			}
			return &userOutput{Body: u}, nil
		})

	type loginOutput struct {
		SetCookie http.Cookie `header:"Set-Cookie"`
		Body      struct {
			Token     string    `json:"token"`
			ExpiresAt time.Time `json:"expires_at"`
			User      auth.User `json:"user"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "login", Method: http.MethodPost, Path: "/api/v1/auth/login", Summary: "Log in and open a session", Tags: []string{"Auth"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Email    string `json:"email,omitempty" doc:"Account email"`
				Password string `json:"password,omitempty" doc:"Account password"`
			}
		}) (*loginOutput, error) {
			sess, u, err := svc.Login(ctx, input.Body.Email, input.Body.Password)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &loginOutput{SetCookie: sessionCookie(sess.Token, sess.ExpiresAt, secure)}
			out.Body.Token = sess.Token
			out.Body.ExpiresAt = sess.ExpiresAt
			out.Body.User = u
			return out, nil
		})

	type logoutOutput struct {
		SetCookie http.Cookie `header:"Set-Cookie"`
		Body      struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "logout", Method: http.MethodPost, Path: "/api/v1/auth/logout", Summary: "End the current session", Tags: []string{"Auth"}},
		func(ctx context.Context, input *SessionAuth) (*logoutOutput, error) {
			if err := svc.Logout(ctx, input.token()); err != nil {
				return nil, mapErr(err)
			}
			out := &logoutOutput{SetCookie: sessionCookie("", time.Time{}, secure)}
			out.Body.Status = "logged_out"
			return out, nil
		})

	huma.Register(api, huma.Operation{OperationID: "me", Method: http.MethodGet, Path: "/api/v1/auth/me", Summary: "Current user", Tags: []string{"Auth"}},
		func(ctx context.Context, input *SessionAuth) (*userOutput, error) {
			u, err := requireUser(ctx, svc, *input)
			if err != nil {
				return nil, mapErr(err)
			}
			return &userOutput{Body: u}, nil
		})
}
