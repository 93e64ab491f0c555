package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/saltyorg/dbquery/internal/config"
	"github.com/saltyorg/dbquery/internal/database"
)

func runQuery(cmd *cobra.Command, args []string) error {
	params, err := decodeParams(args[1:], typedParams)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadDatabaseConfig(config.NewEnvLoader())
	pool, err := database.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database pool: %w", err)
	}
	defer pool.Close()

	rows, err := database.NewExecutor(pool).Execute(ctx, args[0], params...)
	if err != nil {
		return err
	}

	return writeRows(cmd.OutOrStdout(), rows)
}

// decodeParams turns CLI arguments into bind parameters. Without typed, every
// argument is passed as a string and the server casts it. With typed, each
// argument must be a JSON scalar.
func decodeParams(args []string, typed bool) ([]any, error) {
	params := make([]any, 0, len(args))
	for i, arg := range args {
		if !typed {
			params = append(params, arg)
			continue
		}

		v, err := decodeScalar(arg)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i+1, err)
		}
		params = append(params, v)
	}
	return params, nil
}

func decodeScalar(arg string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(arg)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid JSON scalar %q: %w", arg, err)
	}
	if dec.More() {
		return nil, fmt.Errorf("invalid JSON scalar %q: trailing data", arg)
	}

	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		return val.Float64()
	case string, bool, nil:
		return val, nil
	default:
		return nil, fmt.Errorf("%q is not a scalar", arg)
	}
}

// writeRows prints rows as an indented JSON array, with []byte values
// printed as strings instead of base64.
func writeRows(w io.Writer, rows []database.Row) error {
	for _, row := range rows {
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
