package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"pfagent/agent"
	"pfagent/config"
	"pfagent/model"
	"pfagent/provider"
	"pfagent/storage"
	"pfagent/workspace"
)

const Version = "v0.1.0"

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	promptStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
)

// terminalUI is a line-oriented ChatUI: each message renders as one
// styled line, streamed updates rewrite the current line in place.
type terminalUI struct {
	messages  []string
	streaming bool
}

func (u *terminalUI) AppendMessage(role, content string) model.MessageHandle {
	u.finishStream()
	u.messages = append(u.messages, content)
	handle := model.MessageHandle(len(u.messages) - 1)
	if content != "" {
		fmt.Println(u.render(role, content))
	} else if role == model.RoleAssistant {
		// Empty assistant message means streaming is about to start.
		u.streaming = true
	}
	return handle
}

func (u *terminalUI) UpdateMessage(handle model.MessageHandle, content string) {
	idx := int(handle)
	if idx < 0 || idx >= len(u.messages) {
		return
	}
	u.messages[idx] = content
	fmt.Print("\r\033[K" + assistantStyle.Render(content))
}

func (u *terminalUI) AppendConfirmationActions() {
	u.finishStream()
	fmt.Println(toolStyle.Render("[confirm: yes / no]"))
}

func (u *terminalUI) ClearMessages() {
	u.finishStream()
	u.messages = nil
}

func (u *terminalUI) SetBusy(busy bool) {
	if !busy {
		u.finishStream()
	}
}

func (u *terminalUI) render(role, content string) string {
	switch role {
	case model.RoleUser:
		return userStyle.Render("you: ") + content
	case model.RoleTool:
		return toolStyle.Render(content)
	default:
		return assistantStyle.Render(content)
	}
}

func (u *terminalUI) finishStream() {
	if u.streaming {
		fmt.Println()
		u.streaming = false
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	dataDir := cfg.DataDir()
	config.InitDebugLog(dataDir)

	store, err := storage.NewConversationStore(filepath.Join(dataDir, "conversations.json"), cfg.MemoryLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open conversation store: %v\n", err)
		os.Exit(1)
	}

	audit, err := storage.OpenAuditLog(filepath.Join(dataDir, "toollog.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open audit log: %v\n", err)
		os.Exit(1)
	}
	defer audit.Close()

	api := workspace.NewMemory()

	var llm model.Provider
	if !cfg.RequiresCredential() || cfg.Credential() != "" {
		llm, err = provider.FromSettings(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Provider setup failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Println(toolStyle.Render("No API key configured; running in offline project-lookup mode."))
	}

	ui := &terminalUI{}
	ctl := agent.NewController(cfg, llm, ui, store, audit, api)
	defer ctl.Flush()

	fmt.Println(promptStyle.Render("pfagent " + Version))
	fmt.Println(toolStyle.Render("Type a message, or /help for commands."))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if runCommand(line, ctl, store, audit) {
				return
			}
			continue
		}
		ctl.HandleSend(context.Background(), line)
	}
}

// runCommand handles slash commands. Returns true when the REPL should
// exit.
func runCommand(line string, ctl *agent.Controller, store *storage.ConversationStore, audit *storage.AuditLog) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(toolStyle.Render(strings.Join([]string{
			"/new              start a new conversation",
			"/list             list conversations",
			"/switch <n>       switch to conversation n",
			"/rename <title>   rename the active conversation",
			"/delete           delete the active conversation",
			"/clear            clear the active conversation",
			"/log              show recent tool calls",
			"/quit             exit",
		}, "\n")))
	case "/new":
		conv := store.Create()
		fmt.Println(toolStyle.Render("Switched to new conversation " + conv.ID[:8]))
	case "/list":
		active := store.Active()
		for i, conv := range store.List() {
			marker := "  "
			if conv.ID == active.ID {
				marker = "* "
			}
			fmt.Printf("%s%d. %s (%d messages)\n", marker, i+1, conv.Title, len(conv.Messages))
		}
	case "/switch":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			fmt.Println(errorStyle.Render("Usage: /switch <n>"))
			return false
		}
		list := store.List()
		if n > len(list) {
			fmt.Println(errorStyle.Render("No such conversation."))
			return false
		}
		if err := store.Switch(list[n-1].ID); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		fmt.Println(toolStyle.Render("Switched to: " + list[n-1].Title))
	case "/rename":
		if arg == "" {
			fmt.Println(errorStyle.Render("Usage: /rename <title>"))
			return false
		}
		store.Rename(arg)
		fmt.Println(toolStyle.Render("Renamed."))
	case "/delete":
		active := store.Active()
		if err := store.Remove(active.ID); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		fmt.Println(toolStyle.Render("Deleted: " + active.Title))
	case "/clear":
		ctl.ClearConversation()
	case "/log":
		entries, err := audit.Recent(20)
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		if len(entries) == 0 {
			fmt.Println(toolStyle.Render("No tool calls recorded."))
			return false
		}
		for _, e := range entries {
			status := "ok"
			if !e.OK {
				status = "failed: " + e.Error
			}
			fmt.Printf("%s  %-20s %s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Tool, status)
		}
	default:
		fmt.Println(errorStyle.Render("Unknown command. Try /help."))
	}
	return false
}
