package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"futurehub/internal/app"
	"futurehub/internal/config"
	"futurehub/internal/hub"
	"futurehub/internal/model"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readyTimeout bounds how long a command waits for the first snapshots.
const readyTimeout = 15 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a HubApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "polls vote").
func newApp(ctx context.Context, operation string) (*app.HubApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewHubApp(ctx, cfg, operation, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// newReadyApp is newApp for commands that read mirrors: it requires a signed-in
// user and waits for the first snapshots.
func newReadyApp(ctx context.Context, operation string) (*app.HubApp, error) {
	a, err := newApp(ctx, operation)
	if err != nil {
		return nil, err
	}
	if a.User() == nil {
		a.Close()
		return nil, fmt.Errorf("not logged in, run `hub login` first")
	}

	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := a.Ready(waitCtx); err != nil {
		a.Close()
		return nil, fmt.Errorf("waiting for data: %w", err)
	}
	return a, nil
}

func readPassword(prompt string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		var pw string
		if _, err := fmt.Fscanln(os.Stdin, &pw); err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return pw, nil
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(pw), nil
}

func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// userMessage prefers the message of an AuthError, which is written for users.
func userMessage(err error) error {
	var authErr *hub.AuthError
	if errors.As(err, &authErr) {
		return errors.New(authErr.Message)
	}
	return err
}

var rootCmd = &cobra.Command{
	Use:          "hub",
	Short:        "Saved articles and community polls",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		appID, _ := cmd.Flags().GetString("app-id")

		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		secret, err := newSecret()
		if err != nil {
			return fmt.Errorf("generating token secret: %w", err)
		}

		cfg := config.NewConfig(appID, defaults["base_dir"], secret)
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("App ID:   %s\n", appID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("App ID:    %s\n", cfg.AppID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Log Level: %s\n", cfg.LogLevel)
		fmt.Printf("Store:     %s\n", cfg.Store.Type)
		fmt.Printf("Accounts:  %s\n", cfg.Identity.Accounts)
		fmt.Printf("Articles:  %s\n", cfg.Articles.Scope)
		return nil
	},
}

// account commands
var signupCmd = &cobra.Command{
	Use:   "signup EMAIL",
	Short: "Create an account and log in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		password, err := readPassword("Password: ")
		if err != nil {
			return err
		}

		a, err := newApp(ctx, "signup")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Signup(ctx, args[0], password); err != nil {
			return userMessage(err)
		}
		fmt.Printf("Welcome, %s\n", a.User().Name())
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [EMAIL]",
	Short: "Log in",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		anonymous, _ := cmd.Flags().GetBool("anonymous")
		if !anonymous && len(args) == 0 {
			return fmt.Errorf("EMAIL is required unless --anonymous is set")
		}

		var password string
		if !anonymous {
			var err error
			if password, err = readPassword("Password: "); err != nil {
				return err
			}
		}

		a, err := newApp(ctx, "login")
		if err != nil {
			return err
		}
		defer a.Close()

		if anonymous {
			err = a.LoginAnonymously(ctx)
		} else {
			err = a.Login(ctx, args[0], password)
		}
		if err != nil {
			return userMessage(err)
		}
		fmt.Printf("Logged in as %s\n", a.User().Name())
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx, "logout")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "whoami")
		if err != nil {
			return err
		}
		defer a.Close()

		u := a.User()
		if u == nil {
			fmt.Println("Not logged in.")
			return nil
		}
		email := u.Email
		if email == "" {
			email = "(anonymous)"
		}
		fmt.Printf("%s  %s  %s\n", u.Name(), email, u.UID)
		return nil
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dashboard counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newReadyApp(cmd.Context(), "status")
		if err != nil {
			return err
		}
		defer a.Close()

		s := a.Hub().Stats()
		voted := "no"
		if s.HasVoted {
			voted = "yes"
		}
		fmt.Printf("Articles:    %d\n", s.TotalArticles)
		fmt.Printf("My articles: %d\n", s.MyArticles)
		fmt.Printf("Polls:       %d\n", s.TotalPolls)
		fmt.Printf("Voted:       %s\n", voted)
		if v := a.Hub().View(); v.LastError != "" {
			fmt.Printf("Last error:  %s\n", v.LastError)
		}
		return nil
	},
}

// articles commands
var articlesCmd = &cobra.Command{
	Use:   "articles",
	Short: "Manage saved articles",
}

var articlesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		category, _ := cmd.Flags().GetString("category")

		a, err := newReadyApp(cmd.Context(), "articles list")
		if err != nil {
			return err
		}
		defer a.Close()

		articles := a.Hub().FilterArticles(model.Category(category))
		if len(articles) == 0 {
			fmt.Println("No articles saved.")
			return nil
		}
		uid := a.User().UID
		for _, art := range articles {
			mine := " "
			if art.OwnedBy(uid) {
				mine = "*"
			}
			fmt.Printf("%s %s  %-10s  %s  %s\n",
				mine,
				art.ID,
				art.Category,
				art.CreatedAt.Local().Format("2006-01-02 15:04"),
				art.Title,
			)
			fmt.Printf("    %s\n", art.URL)
		}
		return nil
	},
}

var articlesSaveCmd = &cobra.Command{
	Use:   "save TITLE URL",
	Short: "Save an article",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, _ := cmd.Flags().GetString("summary")
		category, _ := cmd.Flags().GetString("category")

		ctx := cmd.Context()
		a, err := newReadyApp(ctx, "articles save")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.SaveArticle(ctx, args[0], summary, category, args[1])
		if err != nil {
			return fmt.Errorf("saving article: %w", err)
		}
		fmt.Printf("Saved article %s\n", id)
		return nil
	},
}

var articlesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete one of your articles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newReadyApp(ctx, "articles delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteArticle(ctx, args[0]); err != nil {
			return fmt.Errorf("deleting article: %w", err)
		}
		fmt.Printf("Deleted article %s\n", args[0])
		return nil
	},
}

// resources commands
var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Manage your resource inventory",
}

var resourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newReadyApp(cmd.Context(), "resources list")
		if err != nil {
			return err
		}
		defer a.Close()

		resources := a.Hub().Resources().Resources()
		if len(resources) == 0 {
			fmt.Println("No resources.")
			return nil
		}
		for _, r := range resources {
			fmt.Printf("%s  %-20s  %5d  %s\n", r.ID, r.Name, r.Quantity, r.Description)
		}
		return nil
	},
}

var resourcesAddCmd = &cobra.Command{
	Use:   "add NAME QUANTITY",
	Short: "Add a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		quantity, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[1])
		}

		ctx := cmd.Context()
		a, err := newReadyApp(ctx, "resources add")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.AddResource(ctx, args[0], description, quantity)
		if err != nil {
			return fmt.Errorf("adding resource: %w", err)
		}
		fmt.Printf("Added resource %s\n", id)
		return nil
	},
}

var resourcesUpdateCmd = &cobra.Command{
	Use:   "update ID NAME QUANTITY",
	Short: "Replace a resource",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		quantity, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}

		ctx := cmd.Context()
		a, err := newReadyApp(ctx, "resources update")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.UpdateResource(ctx, args[0], args[1], description, quantity); err != nil {
			return fmt.Errorf("updating resource: %w", err)
		}
		fmt.Printf("Updated resource %s\n", args[0])
		return nil
	},
}

var resourcesDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a resource",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newReadyApp(ctx, "resources delete")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteResource(ctx, args[0]); err != nil {
			return fmt.Errorf("deleting resource: %w", err)
		}
		fmt.Printf("Deleted resource %s\n", args[0])
		return nil
	},
}

// polls commands
var pollsCmd = &cobra.Command{
	Use:   "polls",
	Short: "Community polls",
}

var pollsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List polls and their results",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newReadyApp(cmd.Context(), "polls list")
		if err != nil {
			return err
		}
		defer a.Close()

		polls := a.Hub().Polls().Polls()
		if len(polls) == 0 {
			fmt.Println("No polls.")
			return nil
		}
		for _, p := range polls {
			fmt.Printf("%s  %s  [%s, %d votes]\n", p.ID, p.Question, a.Hub().VoteState(p.ID), p.TotalVotes)
			for _, o := range p.Options {
				fmt.Printf("    %-4s %-30s %5.1f%%  (%d)\n", o.ID, o.Text, p.Share(o), o.Votes)
			}
		}
		return nil
	},
}

var pollsVoteCmd = &cobra.Command{
	Use:   "vote POLL_ID OPTION_ID",
	Short: "Vote on a poll",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newReadyApp(ctx, "polls vote")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Vote(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("voting: %w", err)
		}
		fmt.Println("Vote recorded.")
		return nil
	},
}

var pollsCreateCmd = &cobra.Command{
	Use:   "create QUESTION OPTION OPTION...",
	Short: "Publish a poll",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newReadyApp(ctx, "polls create")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.CreatePoll(ctx, args[0], args[1:])
		if err != nil {
			return fmt.Errorf("creating poll: %w", err)
		}
		fmt.Printf("Created poll %s\n", id)
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow articles and polls as they change",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newReadyApp(ctx, "watch")
		if err != nil {
			return err
		}
		defer a.Close()

		printView(a.Hub().View())
		unwatch := a.Hub().Watch(printView)
		defer unwatch()

		<-ctx.Done()
		return nil
	},
}

func printView(v hub.View) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] articles:%d polls:%d resources:%d",
		time.Now().Format("15:04:05"), len(v.Articles), len(v.Polls), len(v.Resources))
	if v.Loading {
		b.WriteString(" loading")
	}
	if v.LastError != "" {
		fmt.Fprintf(&b, " error: %s", v.LastError)
	}
	fmt.Println(b.String())
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("app-id", "futurehub", "Application namespace for stored data")

	// articles subcommands
	articlesCmd.AddCommand(articlesListCmd)
	articlesCmd.AddCommand(articlesSaveCmd)
	articlesCmd.AddCommand(articlesDeleteCmd)
	articlesListCmd.Flags().StringP("category", "c", "", "Only show one category (IA, Remoto, SoftSkills, Geral)")
	articlesSaveCmd.Flags().StringP("summary", "s", "", "Short summary")
	articlesSaveCmd.Flags().StringP("category", "c", "", "Category (default Geral)")

	// resources subcommands
	resourcesCmd.AddCommand(resourcesListCmd)
	resourcesCmd.AddCommand(resourcesAddCmd)
	resourcesCmd.AddCommand(resourcesUpdateCmd)
	resourcesCmd.AddCommand(resourcesDeleteCmd)
	resourcesAddCmd.Flags().StringP("description", "d", "", "Description")
	resourcesUpdateCmd.Flags().StringP("description", "d", "", "Description")

	// polls subcommands
	pollsCmd.AddCommand(pollsListCmd)
	pollsCmd.AddCommand(pollsVoteCmd)
	pollsCmd.AddCommand(pollsCreateCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(signupCmd)
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().Bool("anonymous", false, "Log in without an account")
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(articlesCmd)
	rootCmd.AddCommand(resourcesCmd)
	rootCmd.AddCommand(pollsCmd)
	rootCmd.AddCommand(watchCmd)
}
