package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"markestedt/keyguard/guard"
	"markestedt/keyguard/rules"
	"markestedt/keyguard/storage"
	"markestedt/keyguard/web"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the hook is active and which rules block",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var blockAllCmd = &cobra.Command{
	Use:     "block-all",
	Aliases: []string{"lock"},
	Short:   "Block every rule and install the hook",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, (*web.APIClient).DisableAll)
	},
}

var allowAllCmd = &cobra.Command{
	Use:     "allow-all",
	Aliases: []string{"unlock"},
	Short:   "Allow every key and remove the hook",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAction(cmd, (*web.APIClient).EnableAll)
	},
}

var hookCmd = &cobra.Command{
	Use:       "hook <start|stop>",
	Short:     "Install or remove the hook without touching the rules",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start", "stop"},
	RunE:      runHook,
}

var ruleCmd = &cobra.Command{
	Use:   "rule <name[,name...]|all> <on|off>",
	Short: "Block (on) or allow (off) individual rules",
	Long: `Block (on) or allow (off) individual rules.

Rules: ` + strings.Join(ruleNames(), ", "),
	Args: cobra.ExactArgs(2),
	RunE: runRule,
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List recent hook lifecycle transitions",
	Args:  cobra.NoArgs,
	RunE:  runJournal,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print every status change until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

func init() {
	statusCmd.Flags().Bool("json", false, "Print the status as JSON")

	journalCmd.Flags().Int("limit", 20, "Number of entries to show")
	journalCmd.Flags().Int("offset", 0, "Number of entries to skip")

	rootCmd.AddCommand(statusCmd, blockAllCmd, allowAllCmd, hookCmd, ruleCmd, journalCmd, watchCmd)
}

func apiClient() *web.APIClient {
	return web.NewAPIClient(web.LocalURL(cfg.Control.Port))
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := apiClient().Status(cmd.Context())
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func runAction(cmd *cobra.Command, call func(*web.APIClient, context.Context) (guard.Status, error)) error {
	st, err := call(apiClient(), cmd.Context())
	printStatus(cmd.OutOrStdout(), st)
	return err
}

func runHook(cmd *cobra.Command, args []string) error {
	switch args[0] {
	case "start":
		return runAction(cmd, (*web.APIClient).StartHook)
	case "stop":
		return runAction(cmd, (*web.APIClient).StopHook)
	default:
		return fmt.Errorf("expected start or stop, got %q", args[0])
	}
}

func runRule(cmd *cobra.Command, args []string) error {
	list, err := rules.ParseList(args[0])
	if err != nil {
		return err
	}
	blocked, err := parseToggle(args[1])
	if err != nil {
		return err
	}

	client := apiClient()
	var st guard.Status
	for _, r := range list {
		st, err = client.SetRule(cmd.Context(), r.String(), blocked)
		if err != nil {
			printStatus(cmd.OutOrStdout(), st)
			return fmt.Errorf("%s: %w", r, err)
		}
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func runJournal(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")

	page, err := apiClient().Journal(cmd.Context(), limit, offset)
	if err != nil {
		return err
	}

	printJournal(cmd.OutOrStdout(), page.Entries)
	if shown := offset + len(page.Entries); shown < page.Total {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d of %d entries shown\n", shown, page.Total)
	}
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := cmd.OutOrStdout()
	return apiClient().Watch(ctx, func(st guard.Status) {
		fmt.Fprintf(out, "%s  %s\n", time.Now().Format("15:04:05"), summary(st))
	})
}

// parseToggle accepts on/off and the usual synonyms
func parseToggle(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "block", "true", "1", "yes":
		return true, nil
	case "off", "allow", "false", "0", "no":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}

func ruleNames() []string {
	var names []string
	for _, r := range rules.All() {
		names = append(names, r.String())
	}
	return names
}

func hookState(st guard.Status) string {
	if st.Active {
		return "active"
	}
	return "idle"
}

// summary is a one-line status
func summary(st guard.Status) string {
	var blocked []string
	for _, name := range ruleNames() {
		if st.Rules[name] {
			blocked = append(blocked, name)
		}
	}
	if len(blocked) == 0 {
		return fmt.Sprintf("hook %s, no rules blocking", hookState(st))
	}
	return fmt.Sprintf("hook %s, blocking %s", hookState(st), strings.Join(blocked, ","))
}

func printStatus(w io.Writer, st guard.Status) {
	if st.Rules == nil {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "HOOK\t%s (%s)\n", hookState(st), st.Platform)
	for _, name := range ruleNames() {
		state := "allowed"
		if st.Rules[name] {
			state = "blocked"
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, state)
	}
	tw.Flush()
}

func printJournal(w io.Writer, entries []storage.Entry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tKIND\tDETAIL")
	for _, e := range entries {
		session := e.Session
		if len(session) > 8 {
			session = session[:8]
		}
		if session == "" {
			session = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), session, e.Kind, e.Detail)
	}
	tw.Flush()
}
