// Command adminctl calls the admin API with a freshly minted token.
//
//	adminctl token
//	adminctl stats
//	adminctl callbacks
//	adminctl get <enquiry-id>
//	adminctl status <enquiry-id> <new|in_progress|contacted|converted|closed>
//	adminctl job <whatsapp-message-id>
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	httpmiddleware "github.com/wolfman30/travel-enquiry-bot/internal/http/middleware"
)

const defaultAPIURL = "http://localhost:8080"

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func main() {
	_ = godotenv.Load()

	secret := os.Getenv("ADMIN_JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "ADMIN_JWT_SECRET environment variable not set")
		os.Exit(1)
	}
	token, err := httpmiddleware.IssueAdminToken(secret, "adminctl", time.Hour)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	c := &client{
		baseURL: strings.TrimRight(apiURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := c.run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (c *client) run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: adminctl token|stats|callbacks|get <id>|status <id> <status>|job <id>")
	}
	switch args[0] {
	case "token":
		_, err := fmt.Fprintln(out, c.token)
		return err
	case "stats":
		return c.do(ctx, http.MethodGet, "/admin/enquiries/stats", nil, out)
	case "callbacks":
		return c.do(ctx, http.MethodGet, "/admin/enquiries/callback/pending", nil, out)
	case "get":
		if len(args) < 2 {
			return errors.New("usage: adminctl get <id>")
		}
		return c.do(ctx, http.MethodGet, "/admin/enquiries/"+url.PathEscape(args[1]), nil, out)
	case "status":
		if len(args) < 3 {
			return errors.New("usage: adminctl status <id> <status>")
		}
		body := map[string]string{"status": args[2]}
		return c.do(ctx, http.MethodPut, "/admin/enquiries/"+url.PathEscape(args[1])+"/status", body, out)
	case "job":
		if len(args) < 2 {
			return errors.New("usage: adminctl job <id>")
		}
		return c.do(ctx, http.MethodGet, "/admin/jobs/"+url.PathEscape(args[1]), nil, out)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (c *client) do(ctx context.Context, method, path string, payload any, out io.Writer) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		_, err = out.Write(raw)
		return err
	}
	_, err = fmt.Fprintln(out, pretty.String())
	return err
}
