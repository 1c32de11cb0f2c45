// Package main provides the interactive terminal client for chatting with
// Bawaal agents.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/ZahurZaidi/Bawaal/internal/api"
	"github.com/ZahurZaidi/Bawaal/internal/auth"
	"github.com/ZahurZaidi/Bawaal/internal/chat"
	"github.com/ZahurZaidi/Bawaal/internal/config"
)

var (
	agentLabel  = color.New(color.FgCyan, color.Bold).Sprint("agent>")
	systemColor = color.New(color.FgYellow).SprintfFunc()
	errorColor  = color.New(color.FgRed).SprintfFunc()
)

func main() {
	cfg := config.Load()

	apiBase := flag.String("api", cfg.APIBaseURL, "REST base URL")
	agentID := flag.String("agent", "", "Agent ID to chat with (empty lists agents)")
	token := flag.String("token", "", "Bearer token (overrides BAWAAL_TOKEN)")
	flag.Parse()

	log.SetFlags(log.Ltime)

	var tokens auth.TokenSource
	if *token != "" {
		tokens = auth.Static(*token)
	} else if cfg.Token != "" {
		tokens = auth.Static(cfg.Token)
	} else {
		tokens = auth.FromEnv("BAWAAL_TOKEN")
	}

	client := api.NewClient(*apiBase, tokens)

	if *agentID == "" {
		if err := listAgents(client); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nRun again with -agent <id> to start chatting.")
		return
	}

	session := chat.NewSession(*agentID, chat.Options{
		ChatBaseURL:        config.DeriveChatURL(*apiBase),
		Tokens:             tokens,
		MaxMessageChars:    cfg.MaxMessageChars,
		ReconnectBaseDelay: cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:  cfg.ReconnectMaxDelay,
		StreamTimeout:      cfg.StreamTimeout,
		DialTimeout:        cfg.DialTimeout,
	})

	fmt.Printf("Connecting to %s...\n", config.DeriveChatURL(*apiBase))
	if err := session.Connect(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Connected. Type a message and press Enter. /help for commands.")
	fmt.Println()

	go render(session)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		input := strings.TrimRight(scanner.Text(), "\r\n")
		switch {
		case input == "/quit":
			session.Disconnect()
			fmt.Println("Bye!")
			return
		case input == "/help":
			fmt.Println("Commands: /status  /agents  /logs  /quit")
		case input == "/status":
			snap := session.Snapshot()
			fmt.Println(systemColor("connection: %s  typing: %v  reconnect pending: %v",
				snap.State, snap.Typing, snap.ReconnectPending))
			if snap.Err != nil {
				fmt.Println(systemColor("last error: %v", snap.Err))
			}
		case input == "/agents":
			if err := listAgents(client); err != nil {
				fmt.Println(errorColor("Error: %v", err))
			}
		case input == "/logs":
			if err := listLogs(client, *agentID); err != nil {
				fmt.Println(errorColor("Error: %v", err))
			}
		case strings.TrimSpace(input) == "":
			continue
		default:
			if err := session.Send(input); err != nil {
				var rejected *chat.SendRejectedError
				if errors.As(err, &rejected) {
					fmt.Println(errorColor("Not sent (%s): your message was kept, try again.", rejected.Reason))
				} else {
					fmt.Println(errorColor("Send failed: %v", err))
				}
			}
		}
	}

	session.Disconnect()
}

// render consumes session updates and prints agent replies token by token
// as they stream in.
func render(session *chat.Session) {
	var (
		done       int  // messages fully rendered
		printed    int  // bytes of the in-progress reply already printed
		inProgress bool // an agent reply line is open
		lastState  chat.ConnState
	)

	for range session.Updates() {
		snap := session.Snapshot()

		if snap.State != lastState {
			switch snap.State {
			case chat.StateConnected:
				if lastState == chat.StateConnecting {
					fmt.Println(systemColor("[connected]"))
				}
			case chat.StateDisconnected:
				if snap.ReconnectPending {
					fmt.Println(systemColor("[connection lost, reconnecting...]"))
				} else {
					fmt.Println(systemColor("[disconnected]"))
				}
			case chat.StateClosed:
				return
			}
			lastState = snap.State
		}

		msgs := snap.Messages
		for done < len(msgs) {
			m := msgs[done]
			if m.Role == chat.RoleUser {
				done++
				continue
			}
			switch m.Status {
			case chat.StatusStreaming:
				if !inProgress {
					fmt.Printf("%s ", agentLabel)
					inProgress = true
					printed = 0
				}
				fmt.Print(m.Content[printed:])
				printed = len(m.Content)
			case chat.StatusComplete:
				if inProgress {
					fmt.Println(m.Content[printed:])
				} else {
					fmt.Printf("%s %s\n", agentLabel, m.Content)
				}
				inProgress = false
				printed = 0
				done++
				continue
			case chat.StatusErrored:
				if inProgress {
					fmt.Println()
				}
				fmt.Println(errorColor("[reply interrupted]"))
				inProgress = false
				printed = 0
				done++
				continue
			}
			break
		}
	}
}

func listAgents(client *api.Client) error {
	agents, err := client.ListAgents(context.Background())
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("No agents configured.")
		return nil
	}
	fmt.Println("Agents:")
	for _, a := range agents {
		fmt.Printf("  %s  %s", a.ID, a.Name)
		if a.Model != "" {
			fmt.Printf("  (%s)", a.Model)
		}
		fmt.Println()
	}
	return nil
}

func listLogs(client *api.Client, agentID string) error {
	convs, err := client.ChatLogs(context.Background(), agentID)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}
	fmt.Println("Conversations:")
	for _, c := range convs {
		fmt.Printf("  %s  %s\n", c.ID, c.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}
