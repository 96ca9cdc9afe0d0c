//go:build ignore

// Run: go run ./build-tools/replay.go -nats nats://localhost:4222 -subject dex.events -file events.jsonl -rps 500

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"dexindexer/internal/config"
	"dexindexer/internal/domain"
	"dexindexer/internal/security"
)

func main() {
	var (
		natsURL  = flag.String("nats", nats.DefaultURL, "nats server url")
		subject  = flag.String("subject", "dex.events", "ingest subject")
		file     = flag.String("file", "events.jsonl", "json-lines file of event envelopes, in block order")
		rps      = flag.Int("rps", 500, "events per second target, 0 publishes as fast as possible")
		privKey  = flag.String("priv", "", "RS256 private key; when set a bearer token is printed for the query API")
		issuer   = flag.String("iss", "dexindexer-auth", "token issuer")
		audience = flag.String("aud", "dexindexer", "token audience")
		scope    = flag.String("scope", "read", "token scope")
	)
	flag.Parse()

	if *privKey != "" {
		signer, err := security.NewRS256Signer(&config.JWTConfig{
			PrivateKeyPath: *privKey,
			Issuer:         *issuer,
			Audience:       *audience,
		})
		if err != nil {
			fmt.Printf("signer init error: %v\n", err)
			os.Exit(1)
		}
		tok, err := signer.Mint("replay", time.Hour, fmt.Sprintf("replay-%d", time.Now().Unix()), *scope)
		if err != nil {
			fmt.Printf("mint error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Authorization: Bearer %s\n", tok)
	}

	f, err := os.Open(*file)
	if err != nil {
		fmt.Printf("open %s: %v\n", *file, err)
		os.Exit(1)
	}
	defer func() { _ = f.Close() }()

	nc, err := nats.Connect(*natsURL, nats.Name("dexindexer-replay"))
	if err != nil {
		fmt.Printf("nats connect error: %v\n", err)
		os.Exit(1)
	}
	defer nc.Close()

	fmt.Printf("replay → nats=%s subject=%s file=%s rps=%d\n", *natsURL, *subject, *file, *rps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pace <-chan time.Time
	if *rps > 0 {
		tick := time.NewTicker(time.Duration(math.Max(1, float64(time.Second)/float64(*rps))))
		defer tick.Stop()
		pace = tick.C
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var sent, skipped int
	start := time.Now()

loop:
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}

		// reject lines the indexer would drop as permanent errors
		var env domain.Envelope
		if err = json.Unmarshal(line, &env); err != nil || env.Kind == "" {
			skipped++
			continue
		}

		if pace != nil {
			select {
			case <-ctx.Done():
				fmt.Println("signal received, stopping…")
				break loop
			case <-pace:
			}
		} else if ctx.Err() != nil {
			break loop
		}

		if err = nc.Publish(*subject, line); err != nil {
			fmt.Printf("publish error: %v\n", err)
			break
		}
		sent++
	}
	if err = sc.Err(); err != nil {
		fmt.Printf("read error: %v\n", err)
	}

	if err = nc.FlushTimeout(5 * time.Second); err != nil {
		fmt.Printf("flush error: %v\n", err)
	}

	elapsed := time.Since(start)
	fmt.Printf("done: sent=%d skipped=%d elapsed=%s rate=%.0f/s\n",
		sent, skipped, elapsed.Truncate(time.Millisecond), float64(sent)/math.Max(elapsed.Seconds(), 0.001))
}
