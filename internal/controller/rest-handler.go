package controller

import (
	"errors"
	"net/http"

	"github.com/watchtogether/server/internal/service/auth"
	"github.com/watchtogether/server/pkg/rest"
)

// authErrorCode maps a service error to its stable wire code and http
// status. Clients key off the code, never the message.
func authErrorCode(err error) (string, int) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		return "invalid_email", http.StatusBadRequest
	case errors.Is(err, auth.ErrWeakPassword):
		return "weak_password", http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidName):
		return "invalid_name", http.StatusBadRequest
	case errors.Is(err, auth.ErrWrongPassword):
		return "wrong_password", http.StatusUnauthorized
	case errors.Is(err, auth.ErrUserNotFound):
		return "user_not_found", http.StatusNotFound
	case errors.Is(err, auth.ErrEmailInUse):
		return "email_in_use", http.StatusConflict
	case errors.Is(err, auth.ErrRateLimited):
		return "rate_limited", http.StatusTooManyRequests
	case errors.Is(err, auth.ErrInvalidCredential):
		return "invalid_credential", http.StatusUnauthorized
	default:
		return "internal", http.StatusInternalServerError
	}
}

func (c controller) writeAuthError(w http.ResponseWriter, err error) {
	code, status := authErrorCode(err)
	rest.WriteJSON(w, status, rest.Envelope{"error": rest.Envelope{
		"code":    code,
		"message": err.Error(),
	}})
}

type signUpRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c controller) signUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": rest.Envelope{
			"code":    "bad_request",
			"message": err.Error(),
		}})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.authService.SignUp(r.Context(), &auth.SignUpParams{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "sign-up rejected", "error", err)
		c.writeAuthError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": resp})
}

type signInRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (c controller) signIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": rest.Envelope{
			"code":    "bad_request",
			"message": err.Error(),
		}})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	resp, err := c.authService.SignIn(r.Context(), &auth.SignInParams{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "sign-in rejected", "error", err)
		c.writeAuthError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": resp})
}

func (c controller) authedUserId(r *http.Request) (string, error) {
	token, err := bearerToken(r)
	if err != nil {
		return "", auth.ErrInvalidCredential
	}

	return c.authService.ParseToken(token)
}

func (c controller) profile(w http.ResponseWriter, r *http.Request) {
	userId, err := c.authedUserId(r)
	if err != nil {
		c.writeAuthError(w, err)
		return
	}

	user, err := c.authService.Profile(r.Context(), userId)
	if err != nil {
		c.writeAuthError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": user})
}

type updateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required"`
	PhotoURL    string `json:"photo_url"`
}

func (c controller) updateProfile(w http.ResponseWriter, r *http.Request) {
	userId, err := c.authedUserId(r)
	if err != nil {
		c.writeAuthError(w, err)
		return
	}

	var req updateProfileRequest
	if err := rest.ReadJSON(r, &req); err != nil {
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": rest.Envelope{
			"code":    "bad_request",
			"message": err.Error(),
		}})
		return
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return
	}

	user, err := c.authService.UpdateProfile(r.Context(), &auth.UpdateProfileParams{
		UserId:   userId,
		Name:     req.DisplayName,
		PhotoURL: req.PhotoURL,
	})
	if err != nil {
		c.writeAuthError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": user})
}

func (c controller) searchVideos(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"error": rest.Envelope{
			"code":    "bad_request",
			"message": "query is required",
		}})
		return
	}

	results, err := c.videoSearcher.Search(r.Context(), query)
	if err != nil {
		c.logger.WarnContext(r.Context(), "video search failed", "error", err)
		rest.WriteJSON(w, http.StatusBadGateway, rest.Envelope{"error": rest.Envelope{
			"code":    "search_failed",
			"message": "search failed",
		}})
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": results})
}
