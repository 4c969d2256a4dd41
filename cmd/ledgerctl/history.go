package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/itchyny/gojq"
	"github.com/richardliu001/address-ledger/internal/model"
)

// openHistory opens path, or stdin for "-".
func openHistory(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(stdin), nil
	}
	return os.Open(path)
}

// loadHistory decodes a JSON array of transactions. When where is set it is a
// jq expression evaluated per record; only records for which it yields a
// truthy value are kept.
func loadHistory(r io.Reader, where string) ([]model.Transaction, error) {
	var raw []json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}

	var code *gojq.Code
	if where != "" {
		query, err := gojq.Parse(where)
		if err != nil {
			return nil, fmt.Errorf("invalid --where filter: %w", err)
		}
		code, err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("compile --where filter: %w", err)
		}
	}

	history := make([]model.Transaction, 0, len(raw))
	for i, item := range raw {
		if code != nil {
			keep, err := matches(code, item)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			if !keep {
				continue
			}
		}
		var tx model.Transaction
		if err := json.Unmarshal(item, &tx); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		history = append(history, tx)
	}
	return history, nil
}

func matches(code *gojq.Code, item json.RawMessage) (bool, error) {
	var v interface{}
	if err := json.Unmarshal(item, &v); err != nil {
		return false, err
	}
	iter := code.Run(v)
	out, ok := iter.Next()
	if !ok {
		return false, nil
	}
	if err, isErr := out.(error); isErr {
		return false, err
	}
	return isTruthy(out), nil
}

func isTruthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}
