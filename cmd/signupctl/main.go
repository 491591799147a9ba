package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"selfsignup/pkg/attrs"
	"selfsignup/pkg/platform/middleware/admin"
)

type client struct {
	baseURL    string
	adminToken string
	outFormat  string // "json" | "text"
	http       *http.Client
	out        io.Writer
}

func (c *client) do(method, path string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, strings.TrimRight(c.baseURL, "/")+path, body)
	if err != nil {
		return 0, nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.adminToken != "" {
		req.Header.Set(admin.HeaderAdminToken, c.adminToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, b, nil
}

// call runs one request and prints the response. Non-2xx statuses come back
// as errors carrying the server's description.
func (c *client) call(op, method, path string, payload any) error {
	status, body, err := c.do(method, path, payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status/100 != 2 {
		var env struct {
			Description string `json:"error_description"`
			Code        string `json:"error_code"`
		}
		if json.Unmarshal(body, &env) == nil && env.Description != "" {
			if env.Code != "" {
				return fmt.Errorf("%s failed: status=%d code=%s: %s", op, status, env.Code, env.Description)
			}
			return fmt.Errorf("%s failed: status=%d: %s", op, status, env.Description)
		}
		return fmt.Errorf("%s failed: status=%d", op, status)
	}
	c.print(status, body)
	return nil
}

func (c *client) print(status int, body []byte) {
	if c.outFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(c.out, string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Fprintln(c.out, strings.TrimSpace(string(body)))
	} else {
		fmt.Fprintf(c.out, "status=%d\n", status)
	}
}

// parsePairs turns repeated key=value flags into an ordered map.
func parsePairs(flag string, values []string) (attrs.Map, error) {
	if len(values) == 0 {
		return nil, nil
	}
	m := make(attrs.Map, 0, len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("--%s expects key=value, got %q", flag, v)
		}
		m.Add(k, val)
	}
	return m, nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	cl := &client{out: out}
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "signupctl",
		Short:         "Drive the self sign-up API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cl.http = &http.Client{Timeout: timeout}
		},
	}
	root.PersistentFlags().StringVar(&cl.baseURL, "url", envOr("SIGNUP_URL", "http://localhost:8080"), "API base URL (env SIGNUP_URL)")
	root.PersistentFlags().StringVar(&cl.outFormat, "out", envOr("SIGNUP_OUT", "text"), "Output format: json|text")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	var (
		regClaims, regCreds, regProps []string
		regDomain                     string
	)
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user and start confirmation",
		RunE: func(cmd *cobra.Command, args []string) error {
			claims, err := parsePairs("claim", regClaims)
			if err != nil {
				return err
			}
			if len(claims) == 0 {
				return fmt.Errorf("at least one --claim is required")
			}
			creds, err := parsePairs("credential", regCreds)
			if err != nil {
				return err
			}
			props, err := parsePairs("property", regProps)
			if err != nil {
				return err
			}
			return cl.call("register", http.MethodPost, "/signup/register", map[string]any{
				"claims":      claims,
				"credentials": creds,
				"domain":      regDomain,
				"properties":  props,
			})
		},
	}
	registerCmd.Flags().StringArrayVar(&regClaims, "claim", nil, "Claim as uri=value (repeatable)")
	registerCmd.Flags().StringArrayVar(&regCreds, "credential", nil, "Credential as type=secret (repeatable)")
	registerCmd.Flags().StringArrayVar(&regProps, "property", nil, "Property as key=value (repeatable)")
	registerCmd.Flags().StringVar(&regDomain, "domain", "", "User store domain")

	confirmCmd := &cobra.Command{
		Use:   "confirm <code>",
		Short: "Confirm a registration with its code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cl.call("confirm", http.MethodPost, "/signup/confirm", map[string]string{"code": args[0]})
		},
	}

	var (
		resendUserID, resendUsername, resendDomain string
		resendProps                                []string
	)
	resendCmd := &cobra.Command{
		Use:   "resend",
		Short: "Issue a new confirmation code",
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := parsePairs("property", resendProps)
			if err != nil {
				return err
			}
			switch {
			case resendUserID != "" && resendUsername != "":
				return fmt.Errorf("--user-id and --username are mutually exclusive")
			case resendUserID != "":
				return cl.call("resend", http.MethodPost,
					"/signup/users/"+url.PathEscape(resendUserID)+"/resend",
					map[string]any{"properties": props})
			case resendUsername != "":
				return cl.call("resend", http.MethodPost, "/signup/resend", map[string]any{
					"claims":     attrs.FromPairs("http://wso2.org/claims/username", resendUsername),
					"domain":     resendDomain,
					"properties": props,
				})
			default:
				return fmt.Errorf("one of --user-id or --username is required")
			}
		},
	}
	resendCmd.Flags().StringVar(&resendUserID, "user-id", "", "User id")
	resendCmd.Flags().StringVar(&resendUsername, "username", "", "Username claim value")
	resendCmd.Flags().StringVar(&resendDomain, "domain", "", "User store domain (with --username)")
	resendCmd.Flags().StringArrayVar(&resendProps, "property", nil, "Property as key=value (repeatable)")

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Purge expired registrations now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cl.adminToken == "" {
				return fmt.Errorf("missing admin token (flag --admin-token or env SIGNUP_ADMIN_TOKEN)")
			}
			return cl.call("purge", http.MethodPost, "/admin/signup/purge", nil)
		},
	}
	purgeCmd.Flags().StringVar(&cl.adminToken, "admin-token", envOr("SIGNUP_ADMIN_TOKEN", ""), "Operator token (env SIGNUP_ADMIN_TOKEN)")

	root.AddCommand(registerCmd, confirmCmd, resendCmd, purgeCmd)
	return root
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
