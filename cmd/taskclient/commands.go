package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/go-task-client/api"
	"github.com/jrsteele09/go-task-client/internal/app"
	"github.com/jrsteele09/go-task-client/internal/config"
	"github.com/jrsteele09/go-task-client/realtime"
	"github.com/jrsteele09/go-task-client/session"
	"github.com/jrsteele09/go-task-client/tasks"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// cli holds the wired client for the lifetime of one command.
type cli struct {
	cfg config.Config
	app *app.App
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "taskclient",
		Short:         "Command line client for the task service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.New(cmd.Context(), c.cfg)
			if err != nil {
				return err
			}
			c.app = a
			return a.Session.Initialize(cmd.Context())
		},
	}

	root.AddCommand(c.loginCmd())
	root.AddCommand(c.registerCmd())
	root.AddCommand(c.logoutCmd())
	root.AddCommand(c.whoamiCmd())
	root.AddCommand(c.tasksCmd())
	root.AddCommand(c.watchCmd())
	return root
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

func (c *cli) requireSession() error {
	if !c.app.Session.IsAuthenticated() {
		return errors.New("not logged in, run `taskclient login` first")
	}
	return nil
}

func (c *cli) loginCmd() *cobra.Command {
	var req api.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.Login(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", c.app.Session.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) registerCmd() *cobra.Command {
	var req api.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.ConfirmPassword = req.Password
			if err := c.app.Session.Register(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered and signed in as %s\n", c.app.Session.DisplayName())
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "Account password")
	cmd.Flags().StringVar(&req.FullName, "name", "", "Full name")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			if refresh {
				if _, err := c.app.Session.LoadProfile(cmd.Context()); err != nil {
					return err
				}
			}
			printSnapshot(cmd.OutOrStdout(), c.app.Session.Snapshot())
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch the profile from the server")
	return cmd
}

func printSnapshot(out io.Writer, snap session.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Status:\t%s\n", snap.Status)
	if snap.User != nil {
		fmt.Fprintf(w, "Name:\t%s (%s)\n", snap.DisplayName(), snap.Initials())
		fmt.Fprintf(w, "Username:\t%s\n", snap.User.Username)
		fmt.Fprintf(w, "Email:\t%s\n", snap.User.Email)
		fmt.Fprintf(w, "ID:\t%s\n", snap.User.ID)
	}
	_ = w.Flush()
}

func (c *cli) tasksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List and manage tasks",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			return c.requireSession()
		},
	}
	cmd.AddCommand(c.tasksListCmd())
	cmd.AddCommand(c.tasksGetCmd())
	cmd.AddCommand(c.tasksCreateCmd())
	cmd.AddCommand(c.tasksCompleteCmd())
	cmd.AddCommand(c.tasksDeleteCmd())
	return cmd
}

func (c *cli) tasksListCmd() *cobra.Command {
	var (
		filter     tasks.Filter
		statuses   []string
		priorities []string
		sortOrder  string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, s := range statuses {
				filter.Status = append(filter.Status, tasks.Status(s))
			}
			for _, p := range priorities {
				filter.Priority = append(filter.Priority, tasks.Priority(p))
			}
			filter.SortOrder = tasks.SortOrder(sortOrder)

			page, err := c.app.Tasks.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), page.Tasks)
			if page.Pagination.Pages > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "page %d of %d (%d tasks)\n", page.Pagination.Current, page.Pagination.Pages, page.Pagination.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (pending, in-progress, completed, cancelled)")
	cmd.Flags().StringSliceVar(&priorities, "priority", nil, "Filter by priority (low, medium, high, urgent)")
	cmd.Flags().StringSliceVar(&filter.Tags, "tag", nil, "Filter by tag")
	cmd.Flags().StringVarP(&filter.Search, "search", "s", "", "Full text search")
	cmd.Flags().IntVar(&filter.Page, "page", 0, "Page number")
	cmd.Flags().IntVarP(&filter.Limit, "limit", "n", 0, "Page size")
	cmd.Flags().StringVar(&filter.SortBy, "sort-by", "", "Sort field")
	cmd.Flags().StringVar(&sortOrder, "sort-order", "", "asc or desc")
	return cmd
}

func (c *cli) tasksGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [id]",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.app.Tasks.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTasks(cmd.OutOrStdout(), []tasks.Task{*t})
			if t.Description != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", t.Description)
			}
			return nil
		},
	}
}

func (c *cli) tasksCreateCmd() *cobra.Command {
	var (
		req      tasks.CreateRequest
		priority string
		due      string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req.Priority = tasks.Priority(priority)
			if due != "" {
				d, err := time.Parse(time.DateOnly, due)
				if err != nil {
					return errors.Wrap(err, "invalid --due, expected YYYY-MM-DD")
				}
				req.DueDate = &d
			}
			t, err := c.app.Tasks.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s\n", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Title, "title", "t", "", "Task title")
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "Task description")
	cmd.Flags().StringVar(&priority, "priority", "", "low, medium, high or urgent")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&req.Tags, "tag", nil, "Tag, repeatable")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func (c *cli) tasksCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete [id]",
		Short: "Mark a task completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := c.app.Tasks.MarkCompleted(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Completed task %s\n", args[0])
			return nil
		},
	}
}

func (c *cli) tasksDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete one or more tasks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if len(args) == 1 {
				err = c.app.Tasks.Delete(cmd.Context(), args[0])
			} else {
				err = c.app.Tasks.BulkDelete(cmd.Context(), args)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", strings.Join(args, ", "))
			return nil
		},
	}
}

func printTasks(out io.Writer, list []tasks.Task) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tDUE\tTITLE")
	for _, t := range list {
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format(time.DateOnly)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.Priority, due, t.Title)
	}
	_ = w.Flush()
}

func (c *cli) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print realtime task events until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			displayAppname(out, c.cfg.GetAppName())

			bridge := c.app.Realtime
			stopStates := bridge.OnStateChange(func(s realtime.State) {
				fmt.Fprintf(out, "[realtime] %s\n", s)
			})
			defer stopStates()

			sub := bridge.Subscribe()
			defer sub.Close()

			if bridge.State() == realtime.StateDisconnected {
				cred, err := c.app.Store.Get()
				if err != nil || cred == nil {
					return errors.New("no stored credential for the realtime connection")
				}
				bridge.Connect(cred.AccessToken, c.app.Session.CurrentUser().ID)
			}

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case ev, ok := <-sub.C():
					if !ok {
						return nil
					}
					fmt.Fprintf(out, "%s %-18s %s\n", ev.ReceivedAt.Format(time.TimeOnly), ev.Kind, ev.Data)
				}
			}
		},
	}
}
