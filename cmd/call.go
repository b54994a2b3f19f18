package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/janw/rtscope/internal/api"
)

var callCmd = &cobra.Command{
	Use:   "call <role> <endpoint>",
	Short: "Call a backend endpoint",
	Long: `Executes one of the session backend's registered endpoints, e.g.

  rtscope call student JOIN_SESSION --param sessionId=42

and prints the response. When the endpoint returns a token, the token
object is printed separately for piping into "rtscope token inspect".
Use "rtscope call --list" to see the registry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if list, _ := cmd.Flags().GetBool("list"); list {
			printRegistry()
			return nil
		}
		if len(args) != 2 {
			return fmt.Errorf("expected <role> <endpoint>, e.g. student JOIN_SESSION")
		}

		ep, ok := api.Lookup(args[0], strings.ToUpper(args[1]))
		if !ok {
			return fmt.Errorf("unknown endpoint %s/%s; try --list", args[0], args[1])
		}

		rawParams, _ := cmd.Flags().GetStringArray("param")
		params, err := parseParams(rawParams)
		if err != nil {
			return err
		}

		baseURL, _ := cmd.Flags().GetString("base-url")
		if baseURL == "" {
			baseURL = os.Getenv("RTSCOPE_API_URL")
		}
		authToken, err := resolveAuthToken(cmd)
		if err != nil {
			return err
		}

		client := api.NewClient(baseURL, authToken)
		resp, err := client.Do(cmd.Context(), ep, params)
		if err != nil {
			return fmt.Errorf("%s", api.Describe(err))
		}

		out, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))

		if tok := api.ExtractToken(resp, ep.TokenField); tok != nil {
			tokenOut, err := json.MarshalIndent(tok, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "\nToken (%s):\n%s\n", ep.TokenField, tokenOut)
		}
		return nil
	},
}

func printRegistry() {
	for _, role := range api.Roles() {
		fmt.Printf("%s:\n", role)
		for _, ep := range api.EndpointsFor(role) {
			params := strings.Join(append(ep.PathParams, ep.BodyParams...), ", ")
			if params == "" {
				params = "-"
			}
			fmt.Printf("  %-22s %-6s %-60s params: %s\n", ep.Name, ep.Method, ep.Path, params)
		}
	}
}

// parseParams turns repeated key=value flags into a parameter map. Values
// that parse as JSON are passed structured; everything else is a string.
func parseParams(raw []string) (map[string]any, error) {
	params := make(map[string]any, len(raw))
	for _, kv := range raw {
		key, value, found := strings.Cut(kv, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", kv)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err == nil {
			params[key] = decoded
		} else {
			params[key] = value
		}
	}
	return params, nil
}

// resolveAuthToken picks the bearer token: flag, then environment, then an
// interactive prompt when requested.
func resolveAuthToken(cmd *cobra.Command) (string, error) {
	if tok, _ := cmd.Flags().GetString("auth-token"); tok != "" {
		return tok, nil
	}
	if tok := os.Getenv("RTSCOPE_AUTH_TOKEN"); tok != "" {
		return tok, nil
	}
	if prompt, _ := cmd.Flags().GetBool("prompt-auth"); prompt {
		return promptSecret("Auth token: ")
	}
	return "", nil
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	// Hide input on a real terminal
	if term.IsTerminal(int(os.Stdin.Fd())) {
		secret, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(secret)), nil
	}

	// Fallback for piped input
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func init() {
	rootCmd.AddCommand(callCmd)
	callCmd.Flags().Bool("list", false, "List the endpoint registry and exit")
	callCmd.Flags().String("base-url", "", "Backend base URL (or RTSCOPE_API_URL)")
	callCmd.Flags().String("auth-token", "", "Bearer token (or RTSCOPE_AUTH_TOKEN)")
	callCmd.Flags().Bool("prompt-auth", false, "Prompt for the bearer token")
	callCmd.Flags().StringArray("param", nil, "Endpoint parameter as key=value (repeatable)")
}
