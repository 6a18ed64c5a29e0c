package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/catena-chat/catena/channel"
	"github.com/catena-chat/catena/config"
	"github.com/catena-chat/catena/messenger"
	"github.com/catena-chat/catena/multiplex"
	"github.com/catena-chat/catena/stream"
)

var (
	selfStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	peerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	metaStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// runChatREPL drives a two-party conversation at the terminal. Recognized
// verbs: /say <text> (implicit for any other line), /invite prompts for
// accounts and opens a new group channel with them and the peer (the REPL
// keeps sending and receiving on the two-party conversation), /nick <name>
// remembers a display name for the peer (durably, if a directory alias
// cache is configured), /leave, /exit and /quit end the session.
func runChatREPL(ctx context.Context, m *messenger.Messenger, cfg *config.Config, peer string) error {
	if _, err := m.OpenConversation(ctx, peer); err != nil {
		return fmt.Errorf("open conversation with %s: %w", peer, err)
	}
	fmt.Println(metaStyle.Render(fmt.Sprintf("chatting with %s (/exit to quit)", displayName(m, cfg, peer))))

	go pollInbox(ctx, m, cfg, peer)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		if strings.HasPrefix(line, "/say ") {
			line = strings.TrimPrefix(line, "/say ")
		}
		switch {
		case line == "/exit", line == "/quit":
			return nil
		case line == "/leave":
			fmt.Println(metaStyle.Render("left the conversation (restart to resume)"))
			return nil
		case strings.HasPrefix(line, "/invite"):
			if err := promptGroupInvite(ctx, m, peer); err != nil {
				fmt.Println(metaStyle.Render("invite failed: " + err.Error()))
			}
		case strings.HasPrefix(line, "/nick "):
			name := strings.TrimSpace(strings.TrimPrefix(line, "/nick "))
			if name == "" {
				fmt.Println(metaStyle.Render("usage: /nick <name>"))
				continue
			}
			if err := m.RememberNickname(peer, name); err != nil {
				fmt.Println(metaStyle.Render("remember nickname failed: " + err.Error()))
				continue
			}
			fmt.Println(metaStyle.Render(fmt.Sprintf("will call %s %q from now on", peer, name)))
		case line == "":
			continue
		default:
			if err := m.Send(ctx, peer, []byte(line)); err != nil {
				fmt.Println(metaStyle.Render("send failed: " + err.Error()))
				continue
			}
			fmt.Println(selfStyle.Render("you") + ": " + line)
		}
	}
	return scanner.Err()
}

func pollInbox(ctx context.Context, m *messenger.Messenger, cfg *config.Config, peer string) {
	for {
		if ctx.Err() != nil {
			return
		}
		msg, err := m.ReceiveOneFrom(ctx, peer)
		if err != nil {
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		printIncoming(displayName(m, cfg, peer), msg)
	}
}

func printIncoming(from string, msg *stream.DecryptedMessage) {
	when := humanize.Time(time.UnixMilli(int64(msg.BlockTimestampMs)))
	fmt.Printf("%s (%s): %s\n", peerStyle.Render(from), metaStyle.Render(when), string(msg.Plaintext))
}

func promptGroupInvite(ctx context.Context, m *messenger.Messenger, peer string) error {
	var rawAccounts string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("accounts to invite (comma-separated)").
				Value(&rawAccounts),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	invitees := strings.Split(rawAccounts, ",")
	invitees = append(invitees, peer)

	accounts := map[string]channel.CorrespondentId{}
	for _, account := range invitees {
		account = strings.TrimSpace(account)
		if account == "" {
			continue
		}
		id, err := m.ResolveAccount(ctx, account)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", account, err)
		}
		accounts[account] = id
	}

	secret, err := channel.GenerateSecret()
	if err != nil {
		return err
	}
	_, err = m.OpenGroupConversation(ctx, accounts, secret, []byte("invite:"+peer))
	return err
}

// runMuxREPL interleaves incoming messages from several accounts in
// timestamp order using the multiplexer, printing each as it arrives.
func runMuxREPL(ctx context.Context, m *messenger.Messenger, peers []string) error {
	sources := make([]multiplex.Source, 0, len(peers))
	for _, peer := range peers {
		conv, err := m.OpenConversation(ctx, peer)
		if err != nil {
			return fmt.Errorf("open conversation with %s: %w", peer, err)
		}
		peerId, ok := m.Lookup(peer)
		if !ok {
			return fmt.Errorf("no resolved identity for %s", peer)
		}
		sources = append(sources, multiplex.Source{
			CorrespondentId: peerId,
			Stream:          conv.Recv,
		})
	}

	mux := multiplex.New(sources...)
	fmt.Println(metaStyle.Render(fmt.Sprintf("multiplexing %d conversations (ctrl-c to quit)", len(peers))))

	for ctx.Err() == nil {
		id, msg, err := mux.Next(ctx)
		if err != nil {
			fmt.Println(metaStyle.Render("mux error: " + err.Error()))
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		account, ok := m.Resolve(id)
		if !ok {
			account = "unknown"
		}
		printIncoming(account, msg)
	}
	return nil
}

// displayName resolves account to a friendly name: a durably remembered
// nickname (directory.AliasCache, set via /nick) wins over the YAML
// contacts seed, which wins over the raw account id.
func displayName(m *messenger.Messenger, cfg *config.Config, account string) string {
	if nickname, ok := m.Nickname(account); ok {
		return nickname
	}
	if nickname, ok := cfg.Contacts[account]; ok {
		return nickname
	}
	return account
}
