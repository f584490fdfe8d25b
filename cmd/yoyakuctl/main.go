// Command yoyakuctl reserves items and lists reservations over the gRPC API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"

	"yoyaku/internal/api"
	"yoyaku/internal/config"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	fs := flag.NewFlagSet("yoyakuctl", flag.ContinueOnError)
	var (
		addr      = fs.String("addr", "localhost:8081", "gRPC server address")
		apiKey    = fs.String("key", os.Getenv("YOYAKU_API_KEY"), "API key")
		apiExtra  = fs.String("extra", os.Getenv("YOYAKU_API_EXTRA"), "API key extra secret")
		keyHeader = fs.String("key-header", "x-api-key", "metadata header carrying the API key")
		extraHdr  = fs.String("extra-header", "x-api-extra", "metadata header carrying the extra secret")
		item      = fs.String("item", "", "item name")
		owner     = fs.Int64("owner", 0, "owner user id (reserve)")
		start     = fs.String("start", "", "first day, YYYY-MM-DD (reserve)")
		end       = fs.String("end", "", "last day, YYYY-MM-DD (reserve)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: yoyakuctl [flags] reserve|list")
	}

	conn, err := grpc.NewClient(*addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", *addr, err)
	}
	defer conn.Close()

	auth := config.APIAuthConfig{HeaderAPIKey: *keyHeader, HeaderExtra: *extraHdr}
	client := api.NewReservationClient(conn, auth, *apiKey, *apiExtra)
	ctx := context.Background()

	var out any
	switch fs.Arg(0) {
	case "reserve":
		r, err := client.Reserve(ctx, *owner, *item, *start, *end)
		if err != nil {
			return err
		}
		logger.Info().Int64("id", r.ID).Str("item", r.ItemName).Msg("reserved")
		out = r
	case "list":
		list, err := client.ListReservations(ctx, *item)
		if err != nil {
			return err
		}
		logger.Info().Int("count", len(list)).Str("item", *item).Msg("listed")
		out = list
	default:
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
