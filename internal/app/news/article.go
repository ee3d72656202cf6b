package news

import (
	"encoding/json"
	"errors"
	"fmt"

	"newsqueue/internal/pkg/queue"
)

// Article is the payload carried by every queue message.
type Article struct {
	Headline string `json:"Headline"`
	Location string `json:"Location"`
}

var errMissingField = errors.New("missing field")

// Encode serializes an article to its JSON message body.
func Encode(a Article) (string, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return "", &queue.SerializationError{Op: "encode", Err: err}
	}
	return string(b), nil
}

// Decode parses a message body. Both keys must be present; a null value decodes as "".
func Decode(body string) (Article, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return Article{}, &queue.SerializationError{Op: "decode", Err: err}
	}

	var a Article
	if err := decodeField(fields, "Headline", &a.Headline); err != nil {
		return Article{}, err
	}
	if err := decodeField(fields, "Location", &a.Location); err != nil {
		return Article{}, err
	}
	return a, nil
}

func decodeField(fields map[string]json.RawMessage, name string, dst *string) error {
	raw, ok := fields[name]
	if !ok {
		return &queue.SerializationError{Op: "decode", Err: fmt.Errorf("%w: %s", errMissingField, name)}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &queue.SerializationError{Op: "decode", Err: fmt.Errorf("%s: %w", name, err)}
	}
	return nil
}
