package rest

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Envelope map[string]any

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	// reject trailing garbage after the first json value
	if dec.More() {
		return errors.New("body must contain a single json value")
	}

	return nil
}

func WriteJSON(w http.ResponseWriter, status int, data Envelope) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(js)

	return nil
}
