package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hazemksouri/parley/internal/chat"
	"github.com/hazemksouri/parley/internal/completion"
	"github.com/hazemksouri/parley/internal/history"
)

// sendTimeout bounds one full send, including the optional search round-trip.
const sendTimeout = 120 * time.Second

type repl struct {
	scanner *bufio.Scanner
}

func newREPL() *repl {
	return &repl{scanner: bufio.NewScanner(os.Stdin)}
}

// confirm asks a blocking yes/no question on stdin.
func (r *repl) confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	if !r.scanner.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(r.scanner.Text()))
	return answer == "y" || answer == "yes"
}

// showStatus prints in-flight status transitions.
func (r *repl) showStatus(status completion.Status) {
	switch status {
	case completion.StatusThinking:
		fmt.Println("… thinking")
	case completion.StatusSearching:
		fmt.Println("… searching the web")
	}
}

func (r *repl) loop(ctx context.Context, store *chat.Store, index *history.Index) error {
	fmt.Println("parley: type a message, or /help for commands")

	for {
		if active := store.ActiveSession(); active != nil {
			fmt.Printf("[%s]> ", active.Title)
		} else {
			fmt.Print("> ")
		}
		if !r.scanner.Scan() {
			return r.scanner.Err()
		}
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := r.command(store, index, line); quit {
				return nil
			}
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		store.SendMessage(sendCtx, line)
		cancel()
		r.printLastReply(store)

		if index != nil {
			if err := index.Rebuild(store.Sessions()); err != nil {
				log.Printf("failed to reindex history: %v", err)
			}
		}
	}
}

// command dispatches one slash command. Returns true on /quit.
func (r *repl) command(store *chat.Store, index *history.Index, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/help":
		fmt.Println(`/new            start a new chat
/sessions       list chats
/switch <n|id>  switch to a chat
/delete <n|id>  delete a chat
/rename <title> rename the current chat
/star <n|id>    star or unstar a chat
/clear          clear the current chat
/find <query>   search across chats
/quit           exit`)
	case "/new":
		session := store.NewChatSession()
		fmt.Printf("now in %q\n", session.Title)
	case "/sessions":
		r.printSessions(store)
	case "/switch":
		if id, ok := r.resolveSession(store, arg); ok {
			store.SwitchSession(id)
		}
	case "/delete":
		if id, ok := r.resolveSession(store, arg); ok {
			store.DeleteSession(id)
		}
	case "/rename":
		store.RenameSession(store.ActiveID(), arg)
	case "/star":
		if id, ok := r.resolveSession(store, arg); ok {
			store.ToggleStar(id)
		}
	case "/clear":
		store.ClearActiveSession()
	case "/find":
		r.find(index, store, arg)
	case "/quit", "/exit":
		return true
	default:
		fmt.Printf("unknown command %s (try /help)\n", cmd)
	}
	return false
}

func (r *repl) printSessions(store *chat.Store) {
	activeID := store.ActiveID()
	for i, sess := range store.Sessions() {
		marker := " "
		if sess.ID == activeID {
			marker = "*"
		}
		star := ""
		if sess.Starred {
			star = " ★"
		}
		fmt.Printf("%s %2d. %s%s (%d messages)\n", marker, i+1, sess.Title, star, len(sess.Messages))
	}
}

// resolveSession accepts either a 1-based list position or a session id.
func (r *repl) resolveSession(store *chat.Store, arg string) (string, bool) {
	if arg == "" {
		fmt.Println("which chat? (see /sessions)")
		return "", false
	}
	sessions := store.Sessions()
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			fmt.Printf("no chat %d\n", n)
			return "", false
		}
		return sessions[n-1].ID, true
	}
	return arg, true
}

func (r *repl) printLastReply(store *chat.Store) {
	active := store.ActiveSession()
	if active == nil || len(active.Messages) == 0 {
		return
	}
	last := active.Messages[len(active.Messages)-1]
	if last.Role != chat.RoleAssistant {
		return
	}
	if last.IsError {
		fmt.Printf("error: %s\n", last.Content)
		return
	}
	fmt.Println(last.Content)
}

func (r *repl) find(index *history.Index, store *chat.Store, query string) {
	if index == nil {
		fmt.Println("history search is unavailable")
		return
	}
	if query == "" {
		fmt.Println("usage: /find <query>")
		return
	}

	matches, err := index.Search(query, 10)
	if err != nil {
		log.Printf("history search failed: %v", err)
		return
	}
	if len(matches) == 0 {
		fmt.Println("no matches")
		return
	}

	// Number matches by their position in the session list so /switch works.
	positions := make(map[string]int)
	for i, sess := range store.Sessions() {
		positions[sess.ID] = i + 1
	}
	for _, m := range matches {
		fmt.Printf("%2d. %s: %s\n", positions[m.SessionID], m.Title, m.Fragment)
	}
}
