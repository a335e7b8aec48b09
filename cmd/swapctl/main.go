// Package main provides swapctl, the operator CLI for the escrow service:
// key generation, swap lifecycle operations and the live event feed.
package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mr-tron/base58"

	"token-swap-escrow/internal/auth"
	"token-swap-escrow/internal/domain"
)

const usage = `Usage: swapctl <command> [flags]

Commands:
  keygen    Generate an ed25519 keypair
  initiate  Open a swap (signs for both parties)
  approve   Settle a pending swap (signs for both parties)
  expire    Refund a lapsed swap
  extend    Push a swap deadline forward
  get       Fetch one swap
  list      List swaps for a party
  events    Fetch the event history of a swap
  watch     Stream live swap events over WebSocket

Use swapctl <command> -h for command flags.`

func main() {
	log.SetFlags(0)

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "keygen":
		err = cmdKeygen(os.Args[2:])
	case "initiate":
		err = cmdInitiate(os.Args[2:])
	case "approve":
		err = cmdApprove(os.Args[2:])
	case "expire":
		err = cmdExpire(os.Args[2:])
	case "extend":
		err = cmdExtend(os.Args[2:])
	case "get":
		err = cmdGet(os.Args[2:])
	case "list":
		err = cmdList(os.Args[2:])
	case "events":
		err = cmdEvents(os.Args[2:])
	case "watch":
		err = cmdWatch(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", os.Args[1], usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("swapctl %s: %v", os.Args[1], err)
	}
}

func serverFlag(fs *flag.FlagSet) *string {
	def := os.Getenv("SWAP_SERVER")
	if def == "" {
		def = "http://localhost:8080"
	}
	return fs.String("server", def, "Escrow server base URL")
}

// keyFile is the on-disk keypair format: base58-encoded ed25519 key material.
type keyFile struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

func cmdKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	out := fs.String("out", "", "Output key file (required)")
	fs.Parse(args)

	if *out == "" {
		return fmt.Errorf("-out is required")
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}

	kf := keyFile{
		Address:    string(domain.AddressFromBytes(pub)),
		PrivateKey: base58.Encode(priv),
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}

	fmt.Println(kf.Address)
	return nil
}

// loadKey reads a key file and returns the address and private key.
func loadKey(path string) (domain.Address, ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read key file: %w", err)
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", nil, fmt.Errorf("parse key file: %w", err)
	}

	raw, err := base58.Decode(kf.PrivateKey)
	if err != nil {
		return "", nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return "", nil, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}

	return domain.Address(kf.Address), ed25519.PrivateKey(raw), nil
}

func cmdInitiate(args []string) error {
	fs := flag.NewFlagSet("initiate", flag.ExitOnError)
	server := serverFlag(fs)
	keyA := fs.String("key-a", "", "Party A key file (required)")
	keyB := fs.String("key-b", "", "Party B key file (required)")
	mintA := fs.String("mint-a", "", "Asset committed by party A (required)")
	mintB := fs.String("mint-b", "", "Asset committed by party B (required)")
	amountA := fs.Uint64("amount-a", 0, "Units of mint-a committed by A (required)")
	amountB := fs.Uint64("amount-b", 0, "Units of mint-b committed by B (required)")
	sourceA := fs.String("source-a", "", "Account the A-side deposit is taken from (required)")
	sourceB := fs.String("source-b", "", "Account the B-side deposit is taken from (required)")
	destA := fs.String("dest-a", "", "Account A receives mint-b into (required)")
	destB := fs.String("dest-b", "", "Account B receives mint-a into (required)")
	deadlineIn := fs.Duration("deadline-in", 24*time.Hour, "Deadline relative to now")
	grace := fs.Duration("grace", time.Hour, "Grace period past the deadline")
	fs.Parse(args)

	for name, v := range map[string]string{
		"-key-a": *keyA, "-key-b": *keyB,
		"-mint-a": *mintA, "-mint-b": *mintB,
		"-source-a": *sourceA, "-source-b": *sourceB,
		"-dest-a": *destA, "-dest-b": *destB,
	} {
		if v == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	if *amountA == 0 || *amountB == 0 {
		return fmt.Errorf("-amount-a and -amount-b are required")
	}

	addrA, privA, err := loadKey(*keyA)
	if err != nil {
		return err
	}
	addrB, privB, err := loadKey(*keyB)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(*deadlineIn).Unix()
	graceSecs := int64(grace.Seconds())

	payload := auth.InitiatePayload(
		addrA, addrB, *mintA, *mintB, *amountA, *amountB,
		*sourceA, *sourceB, *destA, *destB, deadline, graceSecs,
	)

	return postJSON(*server+"/v1/swaps", map[string]any{
		"party_a":      string(addrA),
		"party_b":      string(addrB),
		"mint_a":       *mintA,
		"mint_b":       *mintB,
		"amount_a":     *amountA,
		"amount_b":     *amountB,
		"source_a":     *sourceA,
		"source_b":     *sourceB,
		"dest_a":       *destA,
		"dest_b":       *destB,
		"deadline":     deadline,
		"grace_period": graceSecs,
		"sig_a":        base58.Encode(auth.Sign(privA, payload)),
		"sig_b":        base58.Encode(auth.Sign(privB, payload)),
	})
}

func cmdApprove(args []string) error {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Swap id (required)")
	keyA := fs.String("key-a", "", "Party A key file (required)")
	keyB := fs.String("key-b", "", "Party B key file (required)")
	fs.Parse(args)

	if *id == "" || *keyA == "" || *keyB == "" {
		return fmt.Errorf("-id, -key-a and -key-b are required")
	}

	_, privA, err := loadKey(*keyA)
	if err != nil {
		return err
	}
	_, privB, err := loadKey(*keyB)
	if err != nil {
		return err
	}

	payload := auth.ApprovePayload(*id)
	return postJSON(*server+"/v1/swaps/"+*id+"/approve", map[string]any{
		"sig_a": base58.Encode(auth.Sign(privA, payload)),
		"sig_b": base58.Encode(auth.Sign(privB, payload)),
	})
}

func cmdExpire(args []string) error {
	fs := flag.NewFlagSet("expire", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Swap id (required)")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("-id is required")
	}

	return postJSON(*server+"/v1/swaps/"+*id+"/expire", map[string]any{})
}

func cmdExtend(args []string) error {
	fs := flag.NewFlagSet("extend", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Swap id (required)")
	key := fs.String("key", "", "Requesting party's key file (required)")
	newDeadline := fs.Int64("new-deadline", 0, "New deadline as a Unix timestamp (or use -extend-by)")
	extendBy := fs.Duration("extend-by", 0, "New deadline relative to now")
	fs.Parse(args)

	if *id == "" || *key == "" {
		return fmt.Errorf("-id and -key are required")
	}

	deadline := *newDeadline
	if deadline == 0 {
		if *extendBy == 0 {
			return fmt.Errorf("-new-deadline or -extend-by is required")
		}
		deadline = time.Now().Add(*extendBy).Unix()
	}

	addr, priv, err := loadKey(*key)
	if err != nil {
		return err
	}

	return postJSON(*server+"/v1/swaps/"+*id+"/extend", map[string]any{
		"new_deadline": deadline,
		"party":        string(addr),
		"sig":          base58.Encode(auth.Sign(priv, auth.ExtendPayload(*id, deadline))),
	})
}

func cmdGet(args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Swap id (required)")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	return getJSON(*server + "/v1/swaps/" + *id)
}

func cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	server := serverFlag(fs)
	party := fs.String("party", "", "Party address (required)")
	fs.Parse(args)

	if *party == "" {
		return fmt.Errorf("-party is required")
	}
	return getJSON(*server + "/v1/swaps?party=" + *party)
}

func cmdEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	server := serverFlag(fs)
	id := fs.String("id", "", "Swap id (required)")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("-id is required")
	}
	return getJSON(*server + "/v1/swaps/" + *id + "/events")
}

func cmdWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	server := serverFlag(fs)
	fs.Parse(args)

	wsURL := strings.Replace(*server, "http", "ws", 1) + "/v1/events/ws"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log.Printf("watching %s", wsURL)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		printIndented(msg)
	}
}

// postJSON posts a body and prints the response.
func postJSON(url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

// getJSON fetches a URL and prints the response.
func getJSON(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	printIndented(body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}

func printIndented(raw []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}
