package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lucasdpb/satchel/internal/client"
	"github.com/lucasdpb/satchel/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c := client.New(profile.SocketPath(profileName))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c, *jsonFlag)
	case "outbox":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: satchelctl outbox <list|replay>")
			os.Exit(1)
		}
		cmdOutbox(ctx, c, args[1], *jsonFlag)
	case "notifications":
		sub := "list"
		if len(args) >= 2 {
			sub = args[1]
		}
		cmdNotifications(ctx, c, sub, args[2:], *jsonFlag)
	case "banner":
		sub := "show"
		if len(args) >= 2 {
			sub = args[1]
		}
		cmdBanner(ctx, c, sub)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: satchelctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                     Show daemon status")
	fmt.Fprintln(os.Stderr, "  outbox list                List queued operations")
	fmt.Fprintln(os.Stderr, "  outbox replay              Replay queued operations now")
	fmt.Fprintln(os.Stderr, "  notifications [list]       List notifications (--json for full records)")
	fmt.Fprintln(os.Stderr, "  notifications unread       List unread notifications")
	fmt.Fprintln(os.Stderr, "  notifications read <id>    Mark a notification as read")
	fmt.Fprintln(os.Stderr, "  notifications send <json>  Issue a local notification")
	fmt.Fprintln(os.Stderr, "  notifications settings [default|granted|denied]")
	fmt.Fprintln(os.Stderr, "                             Show or set the notification permission")
	fmt.Fprintln(os.Stderr, "  banner [show]              Show whether the install banner applies")
	fmt.Fprintln(os.Stderr, "  banner dismiss             Dismiss the install banner for 7 days")
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func cmdStatus(ctx context.Context, c *client.Client, jsonOut bool) {
	st, err := c.Status(ctx)
	if err != nil {
		fatal(err)
	}
	if jsonOut {
		outputJSON(st)
		return
	}
	fmt.Printf("State:    %s\n", st.State)
	fmt.Printf("Online:   %v\n", st.Online)
	fmt.Printf("Version:  %s\n", st.ActiveVersion)
	fmt.Printf("Queued:   %d\n", st.QueueDepth)
	fmt.Printf("Unread:   %d\n", st.UnreadCount)
}

func cmdOutbox(ctx context.Context, c *client.Client, subcmd string, jsonOut bool) {
	switch subcmd {
	case "list":
		ops, err := c.Pending(ctx)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(ops)
			return
		}
		if len(ops) == 0 {
			fmt.Println("No pending operations.")
			return
		}
		for _, op := range ops {
			created := time.UnixMilli(op.CreatedAt).Format(time.RFC3339)
			fmt.Printf("%-36s  %-6s %s  (queued %s)\n", op.OperationID, op.Method, op.Target, created)
		}
	case "replay":
		report, err := c.Replay(ctx)
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(report)
			return
		}
		fmt.Printf("Attempted: %d\n", report.Attempted)
		fmt.Printf("Delivered: %d\n", report.Delivered)
		for _, f := range report.Failures {
			fmt.Printf("Failed:    %s %s (%s)\n", f.OpID, f.Target, f.Reason)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown outbox subcommand: %s\n", subcmd)
		os.Exit(1)
	}
}

func cmdNotifications(ctx context.Context, c *client.Client, subcmd string, rest []string, jsonOut bool) {
	switch subcmd {
	case "list", "unread":
		notifs, unread, err := c.Notifications(ctx, subcmd == "unread")
		if err != nil {
			fatal(err)
		}
		if jsonOut {
			outputJSON(notifs)
			return
		}
		if len(notifs) == 0 {
			fmt.Println("No notifications.")
			return
		}
		for _, n := range notifs {
			marker := " "
			if !n.Read {
				marker = "*"
			}
			fmt.Printf("%s %-36s  %s — %s\n", marker, n.ID, n.Title, n.Body)
		}
		fmt.Printf("%d unread\n", unread)
	case "read":
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "usage: satchelctl notifications read <id>")
			os.Exit(1)
		}
		if err := c.MarkRead(ctx, rest[0]); err != nil {
			fatal(err)
		}
		fmt.Println("Marked read.")
	case "send":
		if len(rest) < 1 {
			fmt.Fprintln(os.Stderr, "usage: satchelctl notifications send '<json payload>'")
			os.Exit(1)
		}
		id, err := c.Send(ctx, json.RawMessage(rest[0]))
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Notification %s shown.\n", id)
	case "settings":
		if len(rest) == 0 {
			enabled, err := c.NotificationSettings(ctx)
			if err != nil {
				fatal(err)
			}
			fmt.Printf("Notification permission: %s\n", enabled)
			return
		}
		if err := c.SetNotificationSettings(ctx, rest[0]); err != nil {
			fatal(err)
		}
		fmt.Printf("Notification permission set to %s.\n", rest[0])
	default:
		fmt.Fprintf(os.Stderr, "unknown notifications subcommand: %s\n", subcmd)
		os.Exit(1)
	}
}

func cmdBanner(ctx context.Context, c *client.Client, subcmd string) {
	switch subcmd {
	case "show":
		show, err := c.Banner(ctx)
		if err != nil {
			fatal(err)
		}
		if show {
			fmt.Println("Install banner may be shown.")
		} else {
			fmt.Println("Install banner is in its dismissal cooldown.")
		}
	case "dismiss":
		if err := c.DismissBanner(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("Banner dismissed for 7 days.")
	default:
		fmt.Fprintf(os.Stderr, "unknown banner subcommand: %s\n", subcmd)
		os.Exit(1)
	}
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
