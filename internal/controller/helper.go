package controller

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

func (c controller) generateTimeBasedId() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// bearerToken extracts the credential from the Authorization header.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", fmt.Errorf("authorization header was not provided")
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", fmt.Errorf("authorization header is malformed")
	}

	return token, nil
}
